package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/providers"
	"lyrics-sync-go/services/reconcile"
	"lyrics-sync-go/services/session"
	"lyrics-sync-go/services/translate"
	"time"

	"github.com/spf13/cobra"
)

var (
	fetchAlbum    string
	fetchDuration float64
	fetchVideo    bool
	fetchLang     string
	fetchRoman    bool
	fetchTimeout  time.Duration
)

// fetchResult is what fetch prints.
type fetchResult struct {
	Source        providers.SourceID `json:"source,omitempty"`
	SourceLabel   string             `json:"sourceLabel,omitempty"`
	Similarity    float64            `json:"similarity"`
	RemapRequired bool               `json:"remapRequired"`
	Cacheable     bool               `json:"cacheable"`
	NotFound      bool               `json:"notFound,omitempty"`
	Lyrics        *lyrics.Document   `json:"lyrics"`
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <artist> <title>",
	Short: "resolve lyrics once and print them as json",
	Long:  `runs one reconciliation over the configured sources and prints the chosen document.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), fetchTimeout)
		defer cancel()

		params := providers.Params{
			Artist:          args[0],
			Song:            args[1],
			Album:           fetchAlbum,
			DurationSeconds: fetchDuration,
		}
		var tr translate.Translator
		if fetchLang != "" || fetchRoman {
			tr = translate.NewClientFromConfig()
		}
		opts := translate.Options{TargetLang: fetchLang, Romanize: fetchRoman}
		return fetch(ctx, cmd.OutOrStdout(), reconcile.NewEngineFromConfig(), tr, opts, reconcile.Request{Params: params, MediaIsVideo: fetchVideo})
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchAlbum, "album", "", "album name")
	fetchCmd.Flags().Float64VarP(&fetchDuration, "duration", "d", 0, "track duration in seconds")
	fetchCmd.Flags().BoolVar(&fetchVideo, "video", false, "the media is a video release")
	fetchCmd.Flags().StringVar(&fetchLang, "tl", "", "add translations into this language")
	fetchCmd.Flags().BoolVar(&fetchRoman, "roman", false, "add romanizations")
	fetchCmd.Flags().DurationVar(&fetchTimeout, "timeout", 30*time.Second, "overall lookup timeout")
	rootCmd.AddCommand(fetchCmd)
}

// fetch prints the outcome of req. The translator is optional.
func fetch(ctx context.Context, out io.Writer, r session.Reconciler, tr translate.Translator, opts translate.Options, req reconcile.Request) error {
	outcome, err := r.Reconcile(ctx, req)
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}

	doc := outcome.Document()
	if tr != nil && !outcome.NotFound {
		doc = doc.Clone()
		if err := translate.Fill(ctx, tr, doc, opts); err != nil {
			return fmt.Errorf("translation failed: %w", err)
		}
	}

	res := fetchResult{
		Source:        outcome.Source,
		Similarity:    outcome.Similarity,
		RemapRequired: outcome.RemapRequired,
		Cacheable:     outcome.Cacheable,
		NotFound:      outcome.NotFound,
		Lyrics:        doc,
	}
	if outcome.Result != nil {
		res.SourceLabel = outcome.Result.SourceLabel
	}
	return writeJSON(out, res)
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
