package file

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/librarian/internal/core/domain"
	"github.com/custodia-labs/librarian/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// EnvPrefix starts every environment override.
const EnvPrefix = "LIBRARIAN_"

// ConfigStore is a file-based implementation of driven.ConfigStore using TOML.
// Configuration is stored in config.toml within the librarian config directory.
type ConfigStore struct {
	mu        sync.Mutex
	configDir string
	filePath  string
}

// NewConfigStore creates a new TOML-based config store.
// If configDir is empty, defaults to ~/.librarian.
func NewConfigStore(configDir string) (*ConfigStore, error) {
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		configDir = filepath.Join(home, ".librarian")
	}

	return &ConfigStore{
		configDir: configDir,
		filePath:  filepath.Join(configDir, "config.toml"),
	}, nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.filePath
}

// Exists reports whether the configuration file has been written.
func (s *ConfigStore) Exists() bool {
	_, err := os.Stat(s.filePath)
	return err == nil
}

// Load reads the configuration. Missing keys keep their defaults and a
// missing file is not an error. The result is validated.
func (s *ConfigStore) Load() (*domain.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := domain.DefaultConfig()

	data, err := os.ReadFile(s.filePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, fmt.Errorf("%w: %s: %s", domain.ErrInvalidInput, s.filePath, strict.String())
			}
			return nil, fmt.Errorf("%w: parsing %s: %w", domain.ErrInvalidInput, s.filePath, err)
		}
	}

	dotenv, err := s.readDotenv()
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := applyOverrides(&cfg, lookup); err != nil {
		return nil, err
	}

	if cfg.Library.DataDir == "" {
		cfg.Library.DataDir = filepath.Join(s.configDir, "data")
	}
	cfg.Library.DataDir = expandHome(cfg.Library.DataDir)
	cfg.Library.CalibrePath = expandHome(cfg.Library.CalibrePath)
	cfg.Library.ManifestPath = expandHome(cfg.Library.ManifestPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save persists the configuration with owner-only permissions.
func (s *ConfigStore) Save(cfg *domain.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(s.configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// readDotenv reads .env from the config directory, if present.
func (s *ConfigStore) readDotenv() (map[string]string, error) {
	path := filepath.Join(s.configDir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return vars, nil
}

// override binds an environment variable to a config field.
type override struct {
	key string
	set func(string) error
}

func stringVar(p *string) func(string) error {
	return func(v string) error { *p = v; return nil }
}

func intVar(p *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*p = n
		return nil
	}
}

func floatVar(p *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*p = f
		return nil
	}
}

func boolVar(p *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*p = b
		return nil
	}
}

func overrides(cfg *domain.Config) []override {
	return []override{
		{"SERVER_HOST", stringVar(&cfg.Server.Host)},
		{"SERVER_PORT", intVar(&cfg.Server.Port)},
		{"CATALOG", stringVar((*string)(&cfg.Library.Catalog))},
		{"CALIBRE_PATH", stringVar(&cfg.Library.CalibrePath)},
		{"MANIFEST_PATH", stringVar(&cfg.Library.ManifestPath)},
		{"DATA_DIR", stringVar(&cfg.Library.DataDir)},
		{"WINDOW_WORDS", intVar(&cfg.Chunking.WindowWords)},
		{"OVERLAP_WORDS", intVar(&cfg.Chunking.OverlapWords)},
		{"EMBEDDING_PROVIDER", stringVar((*string)(&cfg.Embedding.Provider))},
		{"EMBEDDING_MODEL", stringVar(&cfg.Embedding.Model)},
		{"EMBEDDING_BASE_URL", stringVar(&cfg.Embedding.BaseURL)},
		{"EMBEDDING_API_KEY", stringVar(&cfg.Embedding.APIKey)},
		{"EMBEDDING_DIMENSIONS", intVar(&cfg.Embedding.Dimensions)},
		{"EMBEDDING_BATCH_SIZE", intVar(&cfg.Embedding.BatchSize)},
		{"EMBEDDING_MAX_RETRIES", intVar(&cfg.Embedding.MaxRetries)},
		{"EMBEDDING_TIMEOUT_SECONDS", intVar(&cfg.Embedding.TimeoutSeconds)},
		{"EMBEDDING_REQUESTS_PER_SECOND", floatVar(&cfg.Embedding.RequestsPerSecond)},
		{"INDEX_WORKERS", intVar(&cfg.Index.Workers)},
		{"INDEX_CHECKPOINT_EVERY", intVar(&cfg.Index.CheckpointEvery)},
		{"INDEX_CHANGE_POLICY", stringVar((*string)(&cfg.Index.ChangePolicy))},
		{"INDEX_INCLUDE_SUMMARY", boolVar(&cfg.Index.IncludeSummary)},
		{"SEARCH_LIMIT", intVar(&cfg.Search.Limit)},
		{"SEARCH_MIN_SIMILARITY", floatVar(&cfg.Search.MinSimilarity)},
		{"SEARCH_OVERSAMPLE_FACTOR", intVar(&cfg.Search.OversampleFactor)},
		{"SEARCH_CONTEXT_WINDOW", intVar(&cfg.Search.ContextWindow)},
		{"CONVERSATION_BASE_URL", stringVar(&cfg.Conversation.BaseURL)},
		{"CONVERSATION_MODEL", stringVar(&cfg.Conversation.Model)},
		{"CONVERSATION_TIMEOUT_SECONDS", intVar(&cfg.Conversation.TimeoutSeconds)},
	}
}

// applyOverrides sets every field whose variable is defined.
func applyOverrides(cfg *domain.Config, lookup func(string) (string, bool)) error {
	var errs []error
	for _, o := range overrides(cfg) {
		key := EnvPrefix + o.key
		v, ok := lookup(key)
		if !ok {
			continue
		}
		if err := o.set(v); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s=%q: %w", domain.ErrInvalidInput, key, v, err))
		}
	}
	return errors.Join(errs...)
}

// expandHome replaces a leading ~ with the home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
