package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hay-kot/studytrack/internal/collector"
	"github.com/hay-kot/studytrack/internal/core/config"
	"github.com/hay-kot/studytrack/internal/core/ingest"
	"github.com/hay-kot/studytrack/internal/core/storage"
	"github.com/hay-kot/studytrack/internal/store/jsonfile"
	"github.com/hay-kot/studytrack/internal/store/sqlite"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "studytrack", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "studytrack")
}

// SnapshotStore opens the local store holding the session snapshot.
func (f *Flags) SnapshotStore() storage.Store {
	return jsonfile.NewKVStore(f.Config.LocalStoreFile())
}

// CollectorClient builds a client for the configured collector. A non-empty
// url overrides the configured one.
func (f *Flags) CollectorClient(url string) *collector.Client {
	cc := f.Config.Collector
	if url != "" {
		cc.URL = url
	}
	return collector.New(collector.Options{
		BaseURL:   cc.URL,
		Timeout:   cc.Timeout,
		UserAgent: cc.UserAgent,
		Headers:   cc.Headers,
		Logger:    logger("collector"),
	})
}

// OpenIngestStore opens the reference collector's backend. backend falls
// back to the configured store when empty.
func (f *Flags) OpenIngestStore(backend string) (ingest.Store, error) {
	cfg := f.Config
	if backend == "" {
		backend = cfg.Serve.Store
	}

	switch backend {
	case config.StoreJSONFile:
		return jsonfile.NewCollector(cfg.CollectorDir(), cfg.Serve.EventRetention), nil
	case config.StoreSQLite:
		if err := os.MkdirAll(cfg.CollectorDir(), 0o755); err != nil {
			return nil, fmt.Errorf("create collector dir: %w", err)
		}
		db, err := sqlite.Open(filepath.Join(cfg.CollectorDir(), "collector.db"), logger("sqlite"))
		if err != nil {
			return nil, err
		}
		return db.WithRetention(cfg.Serve.EventRetention), nil
	default:
		return nil, fmt.Errorf("unknown store %q (want %s or %s)", backend, config.StoreJSONFile, config.StoreSQLite)
	}
}

func logger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
