package cli

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/librarian/internal/core/domain"
)

const redacted = "********"

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Shows and initialises the configuration file.

Settings are read from config.toml in the configuration directory, then
from a .env file next to it, then from LIBRARIAN_* environment variables,
for example LIBRARIAN_EMBEDDING_PROVIDER=ollama.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if wiring.ConfigStore == nil {
			return fmt.Errorf("configuration store not configured")
		}
		store, err := wiring.ConfigStore(configDir)
		if err != nil {
			return err
		}
		cmd.Println(store.Path())
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configInitCmd, configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	store, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	shown := *cfg
	if shown.Embedding.APIKey != "" {
		shown.Embedding.APIKey = redacted
	}
	data, err := toml.Marshal(shown)
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}

	cmd.Println(styles.Muted.Render("# " + store.Path()))
	cmd.Print(string(data))
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	if wiring.ConfigStore == nil {
		return fmt.Errorf("configuration store not configured")
	}
	store, err := wiring.ConfigStore(configDir)
	if err != nil {
		return err
	}

	if _, err := os.Stat(store.Path()); err == nil && !configForce {
		return fmt.Errorf("%s already exists; use --force to overwrite", store.Path())
	}

	cfg := domain.DefaultConfig()
	if err := store.Save(&cfg); err != nil {
		return fmt.Errorf("writing configuration: %w", err)
	}

	cmd.Printf("Wrote %s\n", store.Path())
	cmd.Println("Set library.calibre_path, or library.catalog = \"manifest\" and library.manifest_path, then run librarian index.")
	return nil
}
