package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Default feed locations.
const (
	DefaultUSURL     = "https://covidtracking.com/api/us/daily.csv"
	DefaultStatesURL = "https://covidtracking.com/api/states/daily.csv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Feed locations. An empty WorldURL disables the world feed; an empty
	// PopulationURL uses the embedded reference table.
	Sources       Sources
	SourceTimeout time.Duration
	SourcesFile   string

	RefreshInterval time.Duration
	ViewCacheSize   int

	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
	BatchSize      int
}

// Sources lists the CSV feed URLs. file:// URLs read from local disk.
type Sources struct {
	USURL         string `toml:"us"`
	StatesURL     string `toml:"states"`
	WorldURL      string `toml:"world"`
	PopulationURL string `toml:"population"`
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	sourceTimeout, err := parseDuration("SOURCE_TIMEOUT", "30s")
	if err != nil || sourceTimeout <= 0 {
		return nil, errors.New("invalid SOURCE_TIMEOUT")
	}

	refreshInterval, err := parseDuration("REFRESH_INTERVAL", "0s")
	if err != nil || refreshInterval < 0 {
		return nil, errors.New("invalid REFRESH_INTERVAL")
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	viewCacheSize, err := parseViewCacheSize()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Sources: Sources{
			USURL:         sharedcfg.EnvOrDefault("SOURCE_US_URL", DefaultUSURL),
			StatesURL:     sharedcfg.EnvOrDefault("SOURCE_STATES_URL", DefaultStatesURL),
			WorldURL:      os.Getenv("SOURCE_WORLD_URL"),
			PopulationURL: os.Getenv("SOURCE_POPULATION_URL"),
		},
		SourceTimeout: sourceTimeout,
		SourcesFile:   os.Getenv("SOURCES_FILE"),

		RefreshInterval: refreshInterval,
		ViewCacheSize:   viewCacheSize,

		KafkaEnabled:   os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "covid-observations"),
		BatchSize:      batchSize,
	}

	if cfg.SourcesFile != "" {
		catalog, err := LoadCatalog(cfg.SourcesFile)
		if err != nil {
			return nil, err
		}
		cfg.Sources = catalog.Apply(cfg.Sources)
	}

	if cfg.Sources.USURL == "" {
		return nil, errors.New("SOURCE_US_URL is required")
	}
	if cfg.Sources.StatesURL == "" {
		return nil, errors.New("SOURCE_STATES_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}

	return cfg, nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	return time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
}

func parseViewCacheSize() (int, error) {
	s := os.Getenv("VIEW_CACHE_SIZE")
	if s == "" {
		return 256, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid VIEW_CACHE_SIZE %q", s)
	}
	return n, nil
}
