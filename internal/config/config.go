// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/congestionai/congestionai/internal/database"
	"github.com/congestionai/congestionai/internal/forecast"
	"github.com/congestionai/congestionai/internal/sampling"
)

// History store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// ErrInvalidConfig is returned when a loaded value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full service configuration.
type Config struct {
	Env      string
	LogLevel string

	Server    ServerConfig
	Google    GoogleConfig
	Routing   RoutingConfig
	Redis     RedisConfig
	Store     StoreConfig
	Database  database.Config
	Sampler   sampling.Config
	Planner   PlannerConfig
	Vehicle   forecast.Vehicle
	Weather   WeatherConfig
	Auth      AuthConfig
	PubSub    PubSubConfig
	Worker    WorkerConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	// RateLimitPerMinute applies per client IP to the departure endpoints.
	RateLimitPerMinute int
}

// GoogleConfig holds Google Routes credentials.
type GoogleConfig struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MinLeadTime time.Duration
}

// RoutingConfig controls the route result cache.
type RoutingConfig struct {
	CacheTTL        time.Duration
	DepartureBucket time.Duration
}

// RedisConfig holds the optional Redis cache connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// StoreConfig selects the history store.
type StoreConfig struct {
	Driver     string
	SQLitePath string
}

// PlannerConfig holds request defaults.
type PlannerConfig struct {
	TimeZone     string
	Country      string
	Alpha        float64
	Alternatives int
}

// WeatherConfig holds the optional precipitation source.
type WeatherConfig struct {
	OpenWeatherMapKey string
	CacheTTL          time.Duration
}

// Enabled reports whether a weather provider key is configured.
func (c WeatherConfig) Enabled() bool {
	return c.OpenWeatherMapKey != ""
}

// AuthConfig holds JWT settings.
type AuthConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// PubSubConfig holds the worker subscription.
type PubSubConfig struct {
	ProjectID    string
	Subscription string
}

// WorkerConfig controls batch job execution.
type WorkerConfig struct {
	Concurrency int
	JobTimeout  time.Duration
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool
	Endpoint    string
	SampleRatio float64
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration. Values in envFiles are applied to the process
// environment first without overriding variables that are already set;
// missing files are ignored.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env:      v.GetString("app.env"),
		LogLevel: v.GetString("log.level"),
		Server: ServerConfig{
			Port:               v.GetString("app.port"),
			ReadTimeout:        v.GetDuration("server.read_timeout"),
			WriteTimeout:       v.GetDuration("server.write_timeout"),
			IdleTimeout:        v.GetDuration("server.idle_timeout"),
			ShutdownTimeout:    v.GetDuration("server.shutdown_timeout"),
			CORSOrigins:        splitList(v.GetString("cors.allowed_origins")),
			RateLimitPerMinute: v.GetInt("server.rate_limit_per_minute"),
		},
		Google: GoogleConfig{
			APIKey:      v.GetString("google.maps_api_key"),
			BaseURL:     v.GetString("google.routes_base_url"),
			Timeout:     v.GetDuration("google.routes_timeout"),
			MinLeadTime: v.GetDuration("google.min_lead_time"),
		},
		Routing: RoutingConfig{
			CacheTTL:        v.GetDuration("routing.cache_ttl"),
			DepartureBucket: v.GetDuration("routing.departure_bucket"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(v.GetString("history.store")),
			SQLitePath: v.GetString("history.sqlite_path"),
		},
		Database: database.Config{
			Host:            v.GetString("db.host"),
			Port:            v.GetInt("db.port"),
			User:            v.GetString("db.user"),
			Password:        v.GetString("db.password"),
			Database:        v.GetString("db.name"),
			SSLMode:         v.GetString("db.sslmode"),
			MaxOpenConns:    v.GetInt("db.max_open_conns"),
			MaxIdleConns:    v.GetInt("db.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("db.conn_max_lifetime"),
		},
		Sampler: sampling.Config{
			Concurrency:       v.GetInt("sampler.concurrency"),
			MaxSamples:        v.GetInt("sampler.max_samples"),
			RetryShift:        v.GetDuration("sampler.retry_shift"),
			CallTimeout:       v.GetDuration("sampler.call_timeout"),
			MinStepMinutes:    v.GetInt("sampler.min_step_minutes"),
			MaxStepMinutes:    v.GetInt("sampler.max_step_minutes"),
			MinHorizonMinutes: v.GetInt("sampler.min_horizon_minutes"),
			MaxHorizonMinutes: v.GetInt("sampler.max_horizon_minutes"),
		},
		Planner: PlannerConfig{
			TimeZone:     v.GetString("planner.timezone"),
			Country:      strings.ToLower(v.GetString("planner.country")),
			Alpha:        v.GetFloat64("planner.alpha"),
			Alternatives: v.GetInt("planner.alternatives"),
		},
		Vehicle: forecast.Vehicle{
			FuelPricePerLiter: v.GetFloat64("vehicle.fuel_price"),
			LitersPer100Km:    v.GetFloat64("vehicle.liters_per_100km"),
			TripKm:            v.GetFloat64("vehicle.trip_km"),
		},
		Weather: WeatherConfig{
			OpenWeatherMapKey: v.GetString("openweathermap.api_key"),
			CacheTTL:          v.GetDuration("weather.cache_ttl"),
		},
		Auth: AuthConfig{
			SigningKey: v.GetString("jwt.signing_key"),
			Issuer:     v.GetString("jwt.issuer"),
			Audience:   v.GetString("jwt.audience"),
		},
		PubSub: PubSubConfig{
			ProjectID:    v.GetString("pubsub.project_id"),
			Subscription: v.GetString("pubsub.subscription"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
			JobTimeout:  v.GetDuration("worker.job_timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:     v.GetBool("otel.enabled"),
			Endpoint:    v.GetString("otel.exporter_otlp_endpoint"),
			SampleRatio: v.GetFloat64("otel.sample_ratio"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")

	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit_per_minute", 30)
	v.SetDefault("cors.allowed_origins", "*")

	v.SetDefault("google.routes_base_url", "https://routes.googleapis.com")
	v.SetDefault("google.routes_timeout", 10*time.Second)
	v.SetDefault("google.min_lead_time", 60*time.Second)

	v.SetDefault("routing.cache_ttl", 5*time.Minute)
	v.SetDefault("routing.departure_bucket", 5*time.Minute)

	v.SetDefault("history.store", StoreMemory)
	v.SetDefault("history.sqlite_path", "congestionai.db")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "congestionai")
	v.SetDefault("db.name", "congestionai")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 2)
	v.SetDefault("db.conn_max_lifetime", time.Hour)

	d := sampling.DefaultConfig()
	v.SetDefault("sampler.concurrency", d.Concurrency)
	v.SetDefault("sampler.max_samples", d.MaxSamples)
	v.SetDefault("sampler.retry_shift", d.RetryShift)
	v.SetDefault("sampler.call_timeout", d.CallTimeout)
	v.SetDefault("sampler.min_step_minutes", d.MinStepMinutes)
	v.SetDefault("sampler.max_step_minutes", d.MaxStepMinutes)
	v.SetDefault("sampler.min_horizon_minutes", d.MinHorizonMinutes)
	v.SetDefault("sampler.max_horizon_minutes", d.MaxHorizonMinutes)

	v.SetDefault("planner.timezone", "America/Mexico_City")
	v.SetDefault("planner.country", "mx")
	v.SetDefault("planner.alpha", forecast.DefaultAlpha)
	v.SetDefault("planner.alternatives", forecast.DefaultAlternatives)

	vehicle := forecast.DefaultVehicle()
	v.SetDefault("vehicle.fuel_price", vehicle.FuelPricePerLiter)
	v.SetDefault("vehicle.liters_per_100km", vehicle.LitersPer100Km)
	v.SetDefault("vehicle.trip_km", vehicle.TripKm)

	v.SetDefault("weather.cache_ttl", 30*time.Minute)

	v.SetDefault("jwt.issuer", "congestionai")

	v.SetDefault("pubsub.subscription", "departure-forecast-jobs")

	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.job_timeout", 2*time.Minute)

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.exporter_otlp_endpoint", "localhost:4317")
	v.SetDefault("otel.sample_ratio", 1.0)
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreMemory, StorePostgres, StoreSQLite:
	default:
		return fmt.Errorf("%w: HISTORY_STORE must be memory, postgres or sqlite, got %q", ErrInvalidConfig, c.Store.Driver)
	}
	if c.Planner.Alpha < 0 || c.Planner.Alpha > 1 {
		return fmt.Errorf("%w: PLANNER_ALPHA must be within [0,1], got %v", ErrInvalidConfig, c.Planner.Alpha)
	}
	if _, err := time.LoadLocation(c.Planner.TimeZone); err != nil {
		return fmt.Errorf("%w: PLANNER_TIMEZONE: %w", ErrInvalidConfig, err)
	}
	if c.Sampler.Concurrency <= 0 {
		return fmt.Errorf("%w: SAMPLER_CONCURRENCY must be positive", ErrInvalidConfig)
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
