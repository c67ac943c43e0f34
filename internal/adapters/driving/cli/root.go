// Package cli provides the librarian command line interface.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
	"github.com/custodia-labs/librarian/internal/core/ports/driving"
	"github.com/custodia-labs/librarian/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

// annotationLibrary marks commands that need the opened library.
const annotationLibrary = "library"

// Watcher re-indexes when the catalog changes.
type Watcher interface {
	Watch(ctx context.Context) error
}

// Services are the opened engine's driving ports.
type Services struct {
	Search   driving.SearchService
	Indexing driving.IndexingService
	Library  driving.LibraryService
	Ask      driving.AskService
	Watcher  Watcher

	// Close releases the engine.
	Close func() error
}

// Wiring connects the CLI to configuration and the engine.
type Wiring struct {
	// ConfigStore opens the configuration in dir ("" for the default).
	ConfigStore func(dir string) (driven.ConfigStore, error)

	// Open wires the engine. resetIndex replaces a missing or mismatched
	// vector index.
	Open func(ctx context.Context, cfg domain.Config, resetIndex bool) (*Services, error)
}

var wiring Wiring

// Services available to commands. Set by openLibrary or by tests.
var (
	searchService   driving.SearchService
	indexingService driving.IndexingService
	libraryService  driving.LibraryService
	askService      driving.AskService
	catalogWatcher  Watcher
	closeServices   func() error

	appConfig = domain.DefaultConfig()
)

var (
	configDir string
	verbose   bool
	logLevel  string
)

// isTerminal reports whether fd is an interactive terminal.
var isTerminal = func(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

var rootCmd = &cobra.Command{
	Use:   "librarian",
	Short: "Semantic search over your e-book library",
	Long: `Librarian indexes the books of a Calibre library or a YAML manifest
and answers natural-language queries by meaning rather than keywords.

Books are split into chapters and overlapping chunks, embedded, and
stored in a local vector index next to a SQLite metadata store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if logLevel != "" {
			l, err := logger.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logger.SetLevel(l)
		}
		if cmd.Annotations[annotationLibrary] == "" {
			return nil
		}
		return openLibrary(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "configuration directory (default ~/.librarian)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "lowest level logged: debug, info, warn or error")
}

// Execute runs the root command with the given wiring.
func Execute(ctx context.Context, w Wiring) error {
	wiring = w
	defer func() {
		if closeServices == nil {
			return
		}
		if err := closeServices(); err != nil {
			logger.Warn("closing library: %v", err)
		}
		closeServices = nil
	}()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// libraryCommand marks cmd as needing the opened library.
func libraryCommand(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationLibrary] = "true"
	return cmd
}

// loadConfig reads the configuration through the wiring.
func loadConfig() (driven.ConfigStore, *domain.Config, error) {
	if wiring.ConfigStore == nil {
		return nil, nil, errors.New("configuration store not configured")
	}
	store, err := wiring.ConfigStore(configDir)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := store.Load()
	if err != nil {
		return store, nil, fmt.Errorf("loading %s: %w", store.Path(), err)
	}
	return store, cfg, nil
}

// openLibrary loads the configuration and wires the engine. Commands
// whose services are already set, as in tests, skip it.
func openLibrary(cmd *cobra.Command) error {
	if searchService != nil || wiring.Open == nil {
		return nil
	}

	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	appConfig = *cfg

	ctx := cmd.Context()
	svc, err := wiring.Open(ctx, *cfg, resetIndex)
	if err != nil && !resetIndex && resettable(err) && confirmReset(cmd, err) {
		svc, err = wiring.Open(ctx, *cfg, true)
	}
	if err != nil {
		return err
	}

	searchService = svc.Search
	indexingService = svc.Indexing
	libraryService = svc.Library
	askService = svc.Ask
	catalogWatcher = svc.Watcher
	closeServices = svc.Close
	return nil
}

// resettable reports whether err can be fixed by starting a new index.
func resettable(err error) bool {
	return errors.Is(err, domain.ErrArtifactMismatch) ||
		domain.IsIndexError(err, domain.IndexMissing) ||
		domain.IsIndexError(err, domain.IndexCorrupt)
}

// confirmReset asks on an interactive terminal whether to reset the index.
func confirmReset(cmd *cobra.Command, cause error) bool {
	in, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(in.Fd()) {
		return false
	}
	cmd.PrintErrf("%s\n", styles.Warning.Render(cause.Error()))
	cmd.PrintErr("Start a new vector index? Indexed books will be rebuilt on the next run. [y/N] ")
	return readYes(in)
}

func readYes(r io.Reader) bool {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
