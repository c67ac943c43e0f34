package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var removeCmd = libraryCommand(&cobra.Command{
	Use:   "remove [book-id]",
	Short: "Remove a book from the index",
	Long: `Deletes a book, its chapters and chunks from the metadata store and its
vectors from the vector index. The catalog is not touched, so the book is
indexed again on the next run unless it is also removed from the catalog.`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
})

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	if libraryService == nil {
		return errors.New("library service not configured")
	}
	bookID, err := parseID(args[0], "book")
	if err != nil {
		return err
	}

	book, err := libraryService.Book(cmd.Context(), bookID)
	if err != nil {
		return fmt.Errorf("finding book %d: %w", bookID, err)
	}
	if err := libraryService.Remove(cmd.Context(), bookID); err != nil {
		return fmt.Errorf("removing book %d: %w", bookID, err)
	}

	cmd.Printf("Removed %q.\n", book.Title)
	return nil
}
