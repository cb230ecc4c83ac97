// Package config loads server settings: built-in defaults, then an optional TOML
// file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/codyseavey/tcg-sorter/backend/internal/sorting"
)

// Server contains HTTP listener settings.
type Server struct {
	Port               string   `toml:"port"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	FrontendDistPath   string   `toml:"frontend_dist_path"`
}

// Database contains SQLite settings.
type Database struct {
	Path     string `toml:"path"`
	LogLevel string `toml:"log_level"` // silent, error, warn, info
}

// Images contains scanned image storage settings.
type Images struct {
	Dir string `toml:"dir"`
}

// Scryfall contains reference card API settings.
type Scryfall struct {
	BaseURL        string  `toml:"base_url"`
	RateLimit      float64 `toml:"rate_limit"` // requests per second
	CacheSize      int     `toml:"cache_size"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Prices contains price tracking settings.
type Prices struct {
	WorkerEnabled         bool `toml:"worker_enabled"`
	UpdateIntervalMinutes int  `toml:"update_interval_minutes"`
	StaleAfterMinutes     int  `toml:"stale_after_minutes"`
	BatchSize             int  `toml:"batch_size"`
	Concurrency           int  `toml:"concurrency"`
}

// Recognition contains scan matching settings.
type Recognition struct {
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
}

// Sorting contains sorting defaults.
type Sorting struct {
	DefaultBinCount int `toml:"default_bin_count"`
}

// AMQP contains the optional broker that receives sorting events.
type AMQP struct {
	URL        string `toml:"url"`
	Exchange   string `toml:"exchange"`
	RoutingKey string `toml:"routing_key"`
}

// Snapshots contains daily collection value snapshot settings.
type Snapshots struct {
	Enabled bool `toml:"enabled"`
}

// Config is the full server configuration.
type Config struct {
	Server      Server      `toml:"server"`
	Database    Database    `toml:"database"`
	Images      Images      `toml:"images"`
	Scryfall    Scryfall    `toml:"scryfall"`
	Prices      Prices      `toml:"prices"`
	Recognition Recognition `toml:"recognition"`
	Sorting     Sorting     `toml:"sorting"`
	AMQP        AMQP        `toml:"amqp"`
	Snapshots   Snapshots   `toml:"snapshots"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Port:               "8080",
			CORSAllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
			FrontendDistPath:   "../frontend/dist",
		},
		Database: Database{
			Path:     "./tcg_sorter.db",
			LogLevel: "warn",
		},
		Images: Images{Dir: "./data/scanned_images"},
		Scryfall: Scryfall{
			BaseURL:        "https://api.scryfall.com",
			RateLimit:      10,
			CacheSize:      1000,
			TimeoutSeconds: 30,
		},
		Prices: Prices{
			WorkerEnabled:         true,
			UpdateIntervalMinutes: 60,
			StaleAfterMinutes:     60,
			BatchSize:             75,
			Concurrency:           4,
		},
		Recognition: Recognition{ConfidenceThreshold: 0.75},
		Sorting:     Sorting{DefaultBinCount: sorting.DefaultBinCount},
		AMQP: AMQP{
			Exchange:   "tcg-sorter",
			RoutingKey: "sorting.complete",
		},
		Snapshots: Snapshots{Enabled: true},
	}
}

// Load reads the TOML file at path (skipped when path is empty or missing), then
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("open config: %w", err)
		default:
			defer file.Close()
			if err := toml.NewDecoder(file).DisallowUnknownFields().Decode(&cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv is Load with the file path taken from CONFIG_PATH.
func FromEnv() (*Config, error) {
	return Load(os.Getenv("CONFIG_PATH"))
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("PORT", &c.Server.Port)
	if v, ok := lookup("CORS_ALLOWED_ORIGINS"); ok && v != "" {
		c.Server.CORSAllowedOrigins = strings.Split(v, ",")
	}
	str("FRONTEND_DIST_PATH", &c.Server.FrontendDistPath)
	str("DB_PATH", &c.Database.Path)
	str("DB_LOG_LEVEL", &c.Database.LogLevel)
	str("SCANNED_IMAGES_DIR", &c.Images.Dir)
	str("SCRYFALL_BASE_URL", &c.Scryfall.BaseURL)
	float("SCRYFALL_RATE_LIMIT", &c.Scryfall.RateLimit)
	num("SCRYFALL_CACHE_SIZE", &c.Scryfall.CacheSize)
	flag("PRICE_WORKER_ENABLED", &c.Prices.WorkerEnabled)
	num("PRICE_UPDATE_INTERVAL_MINUTES", &c.Prices.UpdateIntervalMinutes)
	num("PRICE_BATCH_SIZE", &c.Prices.BatchSize)
	num("PRICE_CONCURRENCY", &c.Prices.Concurrency)
	float("RECOGNITION_CONFIDENCE_THRESHOLD", &c.Recognition.ConfidenceThreshold)
	num("DEFAULT_BIN_COUNT", &c.Sorting.DefaultBinCount)
	str("AMQP_URL", &c.AMQP.URL)
	str("AMQP_EXCHANGE", &c.AMQP.Exchange)
	flag("SNAPSHOTS_ENABLED", &c.Snapshots.Enabled)

	return errors.Join(errs...)
}

func (c *Config) normalize() {
	origins := c.Server.CORSAllowedOrigins[:0]
	for _, o := range c.Server.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.Server.CORSAllowedOrigins = origins
	c.Scryfall.BaseURL = strings.TrimRight(c.Scryfall.BaseURL, "/")
	c.Database.LogLevel = strings.ToLower(strings.TrimSpace(c.Database.LogLevel))
	if c.Prices.StaleAfterMinutes <= 0 {
		c.Prices.StaleAfterMinutes = c.Prices.UpdateIntervalMinutes
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	switch c.Database.LogLevel {
	case "silent", "error", "warn", "info":
	default:
		errs = append(errs, fmt.Errorf("database.log_level %q must be silent, error, warn or info", c.Database.LogLevel))
	}
	if c.Scryfall.RateLimit <= 0 {
		errs = append(errs, errors.New("scryfall.rate_limit must be positive"))
	}
	if c.Scryfall.CacheSize <= 0 {
		errs = append(errs, errors.New("scryfall.cache_size must be positive"))
	}
	if c.Prices.UpdateIntervalMinutes <= 0 {
		errs = append(errs, errors.New("prices.update_interval_minutes must be positive"))
	}
	if c.Prices.BatchSize <= 0 || c.Prices.Concurrency <= 0 {
		errs = append(errs, errors.New("prices.batch_size and prices.concurrency must be positive"))
	}
	if t := c.Recognition.ConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("recognition.confidence_threshold %v must be within [0,1]", t))
	}
	if err := sorting.ValidateBinCount(c.Sorting.DefaultBinCount); err != nil {
		errs = append(errs, fmt.Errorf("sorting.default_bin_count: %w", err))
	}
	if c.AMQP.URL != "" && c.AMQP.Exchange == "" {
		errs = append(errs, errors.New("amqp.exchange is required when amqp.url is set"))
	}
	return errors.Join(errs...)
}

// ScryfallTimeout returns the HTTP timeout for Scryfall calls.
func (c *Config) ScryfallTimeout() time.Duration {
	return time.Duration(c.Scryfall.TimeoutSeconds) * time.Second
}

// PriceUpdateInterval returns how often the price worker runs.
func (c *Config) PriceUpdateInterval() time.Duration {
	return time.Duration(c.Prices.UpdateIntervalMinutes) * time.Minute
}

// PriceStaleAfter returns how old a price may be before a refresh fetches it again.
func (c *Config) PriceStaleAfter() time.Duration {
	return time.Duration(c.Prices.StaleAfterMinutes) * time.Minute
}
