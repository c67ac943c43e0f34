package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

var askLimit int

var askCmd = libraryCommand(&cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question answered from your books",
	Long: `Searches the library for passages related to the question and passes
them, as context, to the configured conversation model.

Requires conversation.model in the configuration.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
})

func init() {
	askCmd.Flags().IntVarP(&askLimit, "limit", "n", 5, "number of books used as context")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askService == nil {
		return errors.New("ask service not configured")
	}

	question := strings.Join(args, " ")
	opts := domain.SearchOptions{Limit: askLimit, MinSimilarity: appConfig.Search.MinSimilarity}

	resp, results, err := askService.Ask(cmd.Context(), question, opts)
	if errors.Is(err, domain.ErrConversationUnavailable) {
		return errors.New("no conversation model configured; set conversation.model")
	}
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	cmd.Println(resp.Answer)
	if len(results) > 0 {
		cmd.Println()
		cmd.Println(styles.Muted.Render("Sources:"))
		for i := range results {
			cmd.Println(styles.Muted.Render(fmt.Sprintf("  [%d] %s (%.2f)", i+1, results[i].Title, results[i].Similarity)))
		}
	}
	if resp.Model != "" {
		cmd.Println(styles.Muted.Render("Answered by " + resp.Model))
	}
	return nil
}
