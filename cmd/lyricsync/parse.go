package main

import (
	"fmt"
	"io"
	"lyrics-sync-go/services/lyrics"
	"lyrics-sync-go/services/providers/local"
	"strings"

	"github.com/spf13/cobra"
)

var (
	parseDuration float64
	parseText     bool
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "parse an .lrc or .ttml file",
	Long: `parses a lyrics file into the normalized document and prints it as json,
or as timestamped text with --text.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := local.ReadFile(args[0], int64(parseDuration*1000))
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", args[0], err)
		}
		if parseText {
			printDocument(cmd.OutOrStdout(), doc)
			return nil
		}
		return writeJSON(cmd.OutOrStdout(), doc)
	},
}

func init() {
	parseCmd.Flags().Float64VarP(&parseDuration, "duration", "d", 0, "track duration in seconds, used to close the last line")
	parseCmd.Flags().BoolVar(&parseText, "text", false, "print timestamped lines instead of json")
	rootCmd.AddCommand(parseCmd)
}

func printDocument(out io.Writer, doc *lyrics.Document) {
	synced := doc.SyncGranularity() != lyrics.SyncNone
	for _, line := range doc.Lines {
		prefix := ""
		if synced {
			prefix = "[" + formatTimestamp(float64(line.StartTimeMs)/1000) + "] "
		}
		if line.Agent != "" {
			prefix += line.Agent + ": "
		}
		fmt.Fprintf(out, "%s%s\n", prefix, line.Text)
		if line.Translation != nil {
			fmt.Fprintf(out, "%s  %s\n", strings.Repeat(" ", len(prefix)), line.Translation.Text)
		}
	}
}
