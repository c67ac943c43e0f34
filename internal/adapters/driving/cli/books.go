package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var (
	booksOffset int
	booksLimit  int
	booksJSON   bool
)

var booksCmd = libraryCommand(&cobra.Command{
	Use:   "books",
	Short: "List indexed books",
	Args:  cobra.NoArgs,
	RunE:  runBooks,
})

var chaptersCmd = libraryCommand(&cobra.Command{
	Use:   "chapters [book-id]",
	Short: "List the chapters of an indexed book",
	Args:  cobra.ExactArgs(1),
	RunE:  runChapters,
})

var readCmd = libraryCommand(&cobra.Command{
	Use:   "read [chapter-id]",
	Short: "Print the text of an indexed chapter",
	Long: `Prints a chapter's text, rebuilt from its stored chunks.
Chapter ids are shown by the chapters and search commands.`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
})

func init() {
	booksCmd.Flags().IntVar(&booksOffset, "offset", 0, "number of books to skip")
	booksCmd.Flags().IntVarP(&booksLimit, "limit", "n", 50, "maximum number of books")
	booksCmd.Flags().BoolVar(&booksJSON, "json", false, "output books as JSON")
	rootCmd.AddCommand(booksCmd)
	rootCmd.AddCommand(chaptersCmd)
	rootCmd.AddCommand(readCmd)
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}

func runBooks(cmd *cobra.Command, _ []string) error {
	if libraryService == nil {
		return errors.New("library service not configured")
	}

	books, err := libraryService.Books(cmd.Context(), booksOffset, booksLimit)
	if err != nil {
		return fmt.Errorf("listing books: %w", err)
	}

	if booksJSON {
		return outputJSON(cmd, books)
	}
	if len(books) == 0 {
		cmd.Println("No books indexed.")
		return nil
	}

	for i := range books {
		b := &books[i]
		line := fmt.Sprintf("%6d  %s", b.ID, styles.Title.Render(b.Title))
		if b.Author != "" {
			line += " by " + b.Author
		}
		cmd.Println(line)
		meta := []string{fmt.Sprintf("catalog %d", b.CatalogID)}
		if !b.PublishedAt.IsZero() {
			meta = append(meta, strconv.Itoa(b.PublishedAt.Year()))
		}
		if len(b.Tags) > 0 {
			meta = append(meta, strings.Join(b.Tags, ", "))
		}
		cmd.Printf("        %s\n", styles.Muted.Render(strings.Join(meta, " · ")))
	}
	return nil
}

func runChapters(cmd *cobra.Command, args []string) error {
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
	chapters, err := libraryService.Chapters(cmd.Context(), bookID)
	if err != nil {
		return fmt.Errorf("listing chapters: %w", err)
	}

	cmd.Println(styles.Title.Render(book.Title))
	for _, ch := range chapters {
		cmd.Printf("%6d  %3d. %s %s\n", ch.ID, ch.Ordinal, chapterLabel(ch.Ordinal, ch.Title),
			styles.Muted.Render(fmt.Sprintf("(%d words)", ch.WordCount)))
	}
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	if libraryService == nil {
		return errors.New("library service not configured")
	}
	chapterID, err := parseID(args[0], "chapter")
	if err != nil {
		return err
	}

	text, err := libraryService.ChapterText(cmd.Context(), chapterID)
	if err != nil {
		return fmt.Errorf("reading chapter %d: %w", chapterID, err)
	}
	cmd.Println(text)
	return nil
}
