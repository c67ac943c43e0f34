package driven

import "github.com/custodia-labs/librarian/internal/core/domain"

// ConfigStore provides access to application configuration.
// Implementations handle persistence (e.g., TOML files) and environment
// overrides.
type ConfigStore interface {
	// Load reads the configuration, applying defaults for missing keys
	// and then environment overrides. A missing file is not an error.
	Load() (*domain.Config, error)

	// Save persists the configuration to storage.
	Save(cfg *domain.Config) error

	// Path returns the configuration file path.
	Path() string
}
