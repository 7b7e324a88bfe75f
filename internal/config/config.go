package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIBaseURL     = "http://localhost:3000/api"
	DefaultStaticBase     = "./public"
	DefaultPollInterval   = 30 * time.Second
	DefaultHealthInterval = 60 * time.Second
	DefaultDataTimeout    = 30 * time.Second
	DefaultHealthTimeout  = 5 * time.Second
	DefaultStopsLimit     = 1000
	DefaultStaticCacheTTL = 10 * time.Minute
	DefaultListenAddr     = ":8080"
	DefaultSubjectPrefix  = "vehicles"
	DefaultPositionsTable = "bus_positions"
)

const (
	SourceAPI = "api"
	SourceDB  = "db"
)

type Config struct {
	APIBaseURL     string
	StaticBase     string
	PollInterval   time.Duration
	HealthInterval time.Duration
	DataTimeout    time.Duration
	HealthTimeout  time.Duration
	StopsLimit     int
	StaticCacheTTL time.Duration

	ListenAddr  string
	MetricsAddr string

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	VehicleSource  string
	DatabaseURL    string
	PositionsTable string

	LogLevel string
}

// fileConfig is the optional YAML layer named by CONFIG_FILE. Environment
// variables override it.
type fileConfig struct {
	API struct {
		BaseURL         string `yaml:"baseURL" validate:"omitempty,url"`
		DataTimeoutMS   int    `yaml:"dataTimeoutMS" validate:"gte=0"`
		HealthTimeoutMS int    `yaml:"healthTimeoutMS" validate:"gte=0"`
	} `yaml:"api"`
	Static struct {
		Base        string `yaml:"base"`
		CacheTTLSec int    `yaml:"cacheTTLSec" validate:"gte=0"`
	} `yaml:"static"`
	Polling struct {
		VehicleIntervalSec int `yaml:"vehicleIntervalSec" validate:"gte=0"`
		HealthIntervalSec  int `yaml:"healthIntervalSec" validate:"gte=0"`
		StopsLimit         int `yaml:"stopsLimit" validate:"gte=0"`
	} `yaml:"polling"`
	Server struct {
		ListenAddr  string `yaml:"listenAddr"`
		MetricsAddr string `yaml:"metricsAddr"`
	} `yaml:"server"`
	NATS struct {
		URL           string `yaml:"url" validate:"omitempty,url"`
		SubjectPrefix string `yaml:"subjectPrefix"`
	} `yaml:"nats"`
	Vehicles struct {
		Source         string `yaml:"source" validate:"omitempty,oneof=api db"`
		PositionsTable string `yaml:"positionsTable"`
	} `yaml:"vehicles"`
	LogLevel string `yaml:"logLevel" validate:"omitempty,oneof=debug info warn warning error"`
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		fc, err := readFile(path)
		if err != nil {
			return nil, err
		}
		fc.apply(cfg)
	}

	cfg.APIBaseURL = strings.TrimRight(getenvDefault("API_BASE_URL", cfg.APIBaseURL), "/")
	cfg.StaticBase = getenvDefault("STATIC_BASE", cfg.StaticBase)

	var err error
	if cfg.PollInterval, err = durationEnv("VEHICLE_POLL_INTERVAL_SEC", time.Second, cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.HealthInterval, err = durationEnv("HEALTH_INTERVAL_SEC", time.Second, cfg.HealthInterval); err != nil {
		return nil, err
	}
	if cfg.DataTimeout, err = durationEnv("DATA_TIMEOUT_MS", time.Millisecond, cfg.DataTimeout); err != nil {
		return nil, err
	}
	if cfg.HealthTimeout, err = durationEnv("HEALTH_TIMEOUT_MS", time.Millisecond, cfg.HealthTimeout); err != nil {
		return nil, err
	}
	if cfg.StaticCacheTTL, err = durationEnv("STATIC_CACHE_TTL_SEC", time.Second, cfg.StaticCacheTTL); err != nil {
		return nil, err
	}

	if v := os.Getenv("STOPS_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid STOPS_LIMIT: %q", v)
		}
		cfg.StopsLimit = n
	}

	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", cfg.ListenAddr)
	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", cfg.MetricsAddr)

	// Empty NATS_URL disables snapshot publishing.
	cfg.NATSURL = getenvDefault("NATS_URL", cfg.NATSURL)
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", cfg.NATSSubjectPrefix)
	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		cfg.LogNATSSubjects = parseBool(v)
	}

	cfg.VehicleSource = strings.ToLower(getenvDefault("VEHICLE_SOURCE", cfg.VehicleSource))
	switch cfg.VehicleSource {
	case SourceAPI:
	case SourceDB:
		dsn, err := databaseURL()
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
	default:
		return nil, fmt.Errorf("invalid VEHICLE_SOURCE: %q", cfg.VehicleSource)
	}
	cfg.PositionsTable = getenvDefault("BUS_POSITIONS_TABLE", cfg.PositionsTable)
	cfg.LogLevel = getenvDefault("LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		APIBaseURL:        DefaultAPIBaseURL,
		StaticBase:        DefaultStaticBase,
		PollInterval:      DefaultPollInterval,
		HealthInterval:    DefaultHealthInterval,
		DataTimeout:       DefaultDataTimeout,
		HealthTimeout:     DefaultHealthTimeout,
		StopsLimit:        DefaultStopsLimit,
		StaticCacheTTL:    DefaultStaticCacheTTL,
		ListenAddr:        DefaultListenAddr,
		NATSSubjectPrefix: DefaultSubjectPrefix,
		VehicleSource:     SourceAPI,
		PositionsTable:    DefaultPositionsTable,
		LogLevel:          "info",
	}
}

func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := validator.New().Struct(fc); err != nil {
		return nil, fmt.Errorf("validate config file %s: %w", path, err)
	}
	return &fc, nil
}

func (fc *fileConfig) apply(cfg *Config) {
	setString(&cfg.APIBaseURL, fc.API.BaseURL)
	setDuration(&cfg.DataTimeout, fc.API.DataTimeoutMS, time.Millisecond)
	setDuration(&cfg.HealthTimeout, fc.API.HealthTimeoutMS, time.Millisecond)
	setString(&cfg.StaticBase, fc.Static.Base)
	setDuration(&cfg.StaticCacheTTL, fc.Static.CacheTTLSec, time.Second)
	setDuration(&cfg.PollInterval, fc.Polling.VehicleIntervalSec, time.Second)
	setDuration(&cfg.HealthInterval, fc.Polling.HealthIntervalSec, time.Second)
	if fc.Polling.StopsLimit > 0 {
		cfg.StopsLimit = fc.Polling.StopsLimit
	}
	setString(&cfg.ListenAddr, fc.Server.ListenAddr)
	setString(&cfg.MetricsAddr, fc.Server.MetricsAddr)
	setString(&cfg.NATSURL, fc.NATS.URL)
	setString(&cfg.NATSSubjectPrefix, fc.NATS.SubjectPrefix)
	setString(&cfg.VehicleSource, fc.Vehicles.Source)
	setString(&cfg.PositionsTable, fc.Vehicles.PositionsTable)
	setString(&cfg.LogLevel, fc.LogLevel)
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds a DSN from PG* vars.
func databaseURL() (string, error) {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn, nil
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := os.Getenv("PGDATABASE")
	if db == "" {
		return "", errors.New("PGDATABASE or DATABASE_URL must be set when VEHICLE_SOURCE=db")
	}
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode), nil
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode), nil
}

func durationEnv(key string, unit time.Duration, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(n) * unit, nil
}

func setString(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, n int, unit time.Duration) {
	if n > 0 {
		*dst = time.Duration(n) * unit
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
