package main

import (
	"fmt"
	"os"

	_ "lyrics-sync-go/services/providers/hostref"
	_ "lyrics-sync-go/services/providers/kugou"
	_ "lyrics-sync-go/services/providers/legacy"
	_ "lyrics-sync-go/services/providers/local"
	_ "lyrics-sync-go/services/providers/lrclib"
	_ "lyrics-sync-go/services/providers/ttml"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// global flags
	mprisService string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "lyricsync",
	Short: "synchronized lyrics for the desktop player",
	Long: `lyricsync resolves lyrics for the track playing in an MPRIS player and
follows playback line by line.

when run without a subcommand, it follows the current player.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		log.SetOutput(os.Stderr)
		if verbose {
			log.SetLevel(log.DebugLevel)
		} else {
			log.SetLevel(log.WarnLevel)
		}
	},
	RunE:          runFollow,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&mprisService, "mpris-service", "m", "", "mpris service name (e.g., spotify or org.mpris.MediaPlayer2.spotify)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
