package walletchat

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/0xferal/walletchat/stores"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
}

// Config holds client-wide configuration. Values come from the environment
// with sensible defaults; the With* methods override them in code.
type Config struct {
	// AgentURL is the per-turn streaming endpoint.
	AgentURL string
	// APIBaseURL is the session/auth backend.
	APIBaseURL string
	// WatchdogTimeout bounds stream inactivity before a turn is aborted.
	// It has to tolerate slow multi-step tool execution on the remote side.
	WatchdogTimeout time.Duration
	// CoalesceInterval bounds the render-update rate for streamed answers.
	CoalesceInterval time.Duration
	// Store persists finalized turns locally. Optional.
	Store stores.TranscriptStore
}

// NewConfig builds a configuration from the environment.
func NewConfig() *Config {
	return &Config{
		AgentURL:         envOr("WALLETCHAT_AGENT_URL", "http://localhost:8080/v1/agent/chat"),
		APIBaseURL:       envOr("WALLETCHAT_API_URL", "http://localhost:8080"),
		WatchdogTimeout:  envDuration("WALLETCHAT_WATCHDOG_TIMEOUT", 20*time.Minute),
		CoalesceInterval: envDuration("WALLETCHAT_COALESCE_INTERVAL", 50*time.Millisecond),
	}
}

// WithAgentURL sets the streaming endpoint
func (c *Config) WithAgentURL(url string) *Config {
	c.AgentURL = url
	return c
}

// WithAPIBaseURL sets the backend API base URL
func (c *Config) WithAPIBaseURL(url string) *Config {
	c.APIBaseURL = url
	return c
}

// WithWatchdogTimeout sets the stream inactivity bound
func (c *Config) WithWatchdogTimeout(d time.Duration) *Config {
	c.WatchdogTimeout = d
	return c
}

// WithCoalesceInterval sets the render-update cadence
func (c *Config) WithCoalesceInterval(d time.Duration) *Config {
	c.CoalesceInterval = d
	return c
}

// WithStore sets the transcript store
func (c *Config) WithStore(store stores.TranscriptStore) *Config {
	c.Store = store
	return c
}

// WithSQLiteStore sets a SQLite store with the specified database path
func (c *Config) WithSQLiteStore(dbPath string) *Config {
	store, err := stores.NewSQLiteStoreSimple(dbPath)
	if err != nil {
		panic("Failed to create SQLite store: " + err.Error())
	}
	c.Store = store
	return c
}

// WithPostgresStore sets a PostgreSQL store with the specified connection parameters
func (c *Config) WithPostgresStore(host, user, password, dbname string, port int) *Config {
	store, err := stores.NewPostgresStoreDefault(host, user, password, dbname, port)
	if err != nil {
		panic("Failed to create PostgreSQL store: " + err.Error())
	}
	c.Store = store
	return c
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid duration in %s: %v, using default %v", key, err, fallback)
		return fallback
	}
	return d
}
