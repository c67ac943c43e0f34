package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// maxListedPositions caps the positions printed per problem.
const maxListedPositions = 10

var verifyJSON bool

var verifyCmd = libraryCommand(&cobra.Command{
	Use:   "verify",
	Short: "Check that the metadata store and vector index agree",
	Long: `Checks that the vector index belongs to the metadata store, and that
every stored chunk has a vector and every vector a chunk. A full reindex
repairs any inconsistency found.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
})

func init() {
	verifyCmd.Flags().BoolVar(&verifyJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	if libraryService == nil {
		return errors.New("library service not configured")
	}

	report, err := libraryService.Verify(cmd.Context())
	if err != nil {
		return fmt.Errorf("verifying library: %w", err)
	}

	if verifyJSON {
		if err := outputJSON(cmd, report); err != nil {
			return err
		}
	} else {
		if report.PairingOK {
			cmd.Printf("%s store and index are paired\n", styles.Success.Render("ok"))
		} else {
			cmd.Printf("%s store and index were not written together\n", styles.Error.Render("fail"))
		}
		printPositions(cmd, "vectors without a chunk", report.OrphanVectors)
		printPositions(cmd, "chunks without a vector", report.MissingVectors)
	}

	if !report.OK() {
		return errors.New("library is inconsistent; run librarian index --full to rebuild")
	}
	return nil
}

func printPositions(cmd *cobra.Command, what string, positions []int64) {
	if len(positions) == 0 {
		cmd.Printf("%s no %s\n", styles.Success.Render("ok"), what)
		return
	}
	shown := positions
	if len(shown) > maxListedPositions {
		shown = shown[:maxListedPositions]
	}
	cmd.Printf("%s %d %s: %v", styles.Error.Render("fail"), len(positions), what, shown)
	if len(shown) < len(positions) {
		cmd.Print(" ...")
	}
	cmd.Println()
}
