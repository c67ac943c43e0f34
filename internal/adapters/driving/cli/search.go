package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

var (
	searchLimit         int
	searchMinSimilarity float64
	searchJSON          bool
)

var searchCmd = libraryCommand(&cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed books",
	Long: `Performs semantic search across all indexed books.
The query is embedded and compared with every chunk by cosine similarity;
books are ranked by their best matching chunk and show the chapters that
matched with a snippet of each.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
})

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of books")
	searchCmd.Flags().Float64Var(&searchMinSimilarity, "min-similarity", 0.3, "discard matches below this similarity")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

// searchOptions takes unset flags from the configuration.
func searchOptions(cmd *cobra.Command) domain.SearchOptions {
	opts := domain.SearchOptions{Limit: searchLimit, MinSimilarity: searchMinSimilarity}
	if !cmd.Flags().Changed("limit") {
		opts.Limit = appConfig.Search.Limit
	}
	if !cmd.Flags().Changed("min-similarity") {
		opts.MinSimilarity = appConfig.Search.MinSimilarity
	}
	return opts
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	if searchService == nil {
		return errors.New("search service not configured")
	}

	results, err := searchService.Search(cmd.Context(), query, searchOptions(cmd))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputJSON(cmd, results)
	}

	return outputSearchResults(cmd, results)
}

func outputJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchResults(cmd *cobra.Command, results []domain.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i := range results {
		r := &results[i]
		// Format: [N] Title by Author (similarity)
		line := fmt.Sprintf("  [%d] %s", i+1, styles.Title.Render(r.Title))
		if r.Author != "" {
			line += " by " + r.Author
		}
		cmd.Printf("%s %s\n", line, styles.Muted.Render(fmt.Sprintf("(%.2f)", r.Similarity)))

		for _, ch := range r.Chapters {
			cmd.Printf("      %s %s\n",
				styles.Subtitle.Render(chapterLabel(ch.Ordinal, ch.Title)),
				styles.Muted.Render(fmt.Sprintf("(%.2f, chapter %d)", ch.Similarity, ch.ChapterID)))
			if ch.Snippet != "" {
				cmd.Println(styles.Snippet.Render(ch.Snippet))
			}
		}
		cmd.Println()
	}

	return nil
}

// chapterLabel names a chapter for display.
func chapterLabel(ordinal int, title string) string {
	switch {
	case title != "":
		return title
	case ordinal == 0:
		return "About"
	default:
		return fmt.Sprintf("Chapter %d", ordinal)
	}
}
