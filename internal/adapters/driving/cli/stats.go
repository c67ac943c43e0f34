package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = libraryCommand(&cobra.Command{
	Use:   "stats",
	Short: "Show library statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
})

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output statistics as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	if libraryService == nil {
		return errors.New("library service not configured")
	}

	stats, err := libraryService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading statistics: %w", err)
	}

	if statsJSON {
		return outputJSON(cmd, stats)
	}

	cmd.Printf("Books:      %d\n", stats.Books)
	cmd.Printf("Chapters:   %d\n", stats.Chapters)
	cmd.Printf("Chunks:     %d\n", stats.Chunks)
	cmd.Printf("Words:      %d\n", stats.Words)
	cmd.Printf("Vectors:    %d (%d dimensions)\n", stats.Vectors, stats.Dimensions)
	if stats.Failed > 0 {
		cmd.Printf("Failed:     %d\n", stats.Failed)
	}
	if stats.Model != "" {
		cmd.Printf("Model:      %s\n", stats.Model)
	}
	return nil
}
