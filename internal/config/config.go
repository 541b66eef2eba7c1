// Package config loads service settings from .env, an optional YAML/JSON
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Restaurant struct {
	Address string  `mapstructure:"address"`
	Lat     float64 `mapstructure:"lat"`
	Lng     float64 `mapstructure:"lng"`
}

// Estimation holds every tunable of the ETA formula. Values are replaced as a
// whole, never mutated in place.
type Estimation struct {
	BaseTimeMinutes              int           `mapstructure:"base_time_minutes"`
	DistanceFactorMinutesPerMile float64       `mapstructure:"distance_factor_minutes_per_mile"`
	LoadMinutesPerOrder          int           `mapstructure:"load_minutes_per_order"`
	RandomVariationMin           int           `mapstructure:"random_variation_min"`
	RandomVariationMax           int           `mapstructure:"random_variation_max"`
	MinDeliveryMinutes           int           `mapstructure:"min_delivery_minutes"`
	MaxDeliveryMinutes           int           `mapstructure:"max_delivery_minutes"`
	DeliveryRadiusMiles          float64       `mapstructure:"delivery_radius_miles"`
	MaxConcurrentDeliveries      int           `mapstructure:"max_concurrent_deliveries"`
	Restaurant                   Restaurant    `mapstructure:"restaurant"`
	DistanceCacheTTL             time.Duration `mapstructure:"distance_cache_ttl"`
	ProviderTimeout              time.Duration `mapstructure:"provider_timeout"`
}

type Kafka struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Config struct {
	Port                  string     `mapstructure:"port"`
	DBPath                string     `mapstructure:"db_path"`
	SeedPath              string     `mapstructure:"seed_path"`
	DatabaseURL           string     `mapstructure:"database_url"`
	RedisURL              string     `mapstructure:"redis_url"`
	LogLevel              string     `mapstructure:"log_level"`
	LogJSON               bool       `mapstructure:"log_json"`
	GoogleMapsAPIKey      string     `mapstructure:"google_maps_api_key"`
	ORSAPIKey             string     `mapstructure:"ors_api_key"`
	ProviderRatePerSecond float64    `mapstructure:"provider_rate_per_second"`
	Kafka                 Kafka      `mapstructure:"kafka"`
	Estimation            Estimation `mapstructure:"estimation"`
}

func DefaultEstimation() Estimation {
	return Estimation{
		BaseTimeMinutes:              25,
		DistanceFactorMinutesPerMile: 2.0,
		LoadMinutesPerOrder:          3,
		RandomVariationMin:           -5,
		RandomVariationMax:           10,
		MinDeliveryMinutes:           15,
		MaxDeliveryMinutes:           90,
		DeliveryRadiusMiles:          8.0,
		MaxConcurrentDeliveries:      4,
		Restaurant: Restaurant{
			Address: "123 Main St, Anytown, ST 12345",
			Lat:     37.7749,
			Lng:     -122.4194,
		},
		DistanceCacheTTL: time.Hour,
		ProviderTimeout:  3 * time.Second,
	}
}

// Validate rejects parameter sets the estimator cannot apply.
func (e Estimation) Validate() error {
	var errs []error

	if e.BaseTimeMinutes < 0 {
		errs = append(errs, fmt.Errorf("base_time_minutes must be >= 0, got %d", e.BaseTimeMinutes))
	}
	if e.DistanceFactorMinutesPerMile < 0 || math.IsNaN(e.DistanceFactorMinutesPerMile) {
		errs = append(errs, fmt.Errorf("distance_factor_minutes_per_mile must be >= 0"))
	}
	if e.LoadMinutesPerOrder < 0 {
		errs = append(errs, fmt.Errorf("load_minutes_per_order must be >= 0, got %d", e.LoadMinutesPerOrder))
	}
	if e.RandomVariationMin > e.RandomVariationMax {
		errs = append(errs, fmt.Errorf("random variation range [%d, %d] is empty",
			e.RandomVariationMin, e.RandomVariationMax))
	}
	if e.MinDeliveryMinutes <= 0 || e.MinDeliveryMinutes > e.MaxDeliveryMinutes {
		errs = append(errs, fmt.Errorf("delivery window [%d, %d] is invalid",
			e.MinDeliveryMinutes, e.MaxDeliveryMinutes))
	}
	if e.DeliveryRadiusMiles <= 0 {
		errs = append(errs, fmt.Errorf("delivery_radius_miles must be > 0, got %v", e.DeliveryRadiusMiles))
	}
	if e.MaxConcurrentDeliveries <= 0 {
		errs = append(errs, fmt.Errorf("max_concurrent_deliveries must be > 0, got %d", e.MaxConcurrentDeliveries))
	}
	if strings.TrimSpace(e.Restaurant.Address) == "" {
		errs = append(errs, errors.New("restaurant.address is required"))
	}
	if e.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("provider_timeout must be > 0"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid estimation config: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "data/app.db")
	v.SetDefault("seed_path", "data/seeds/orders.json")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("google_maps_api_key", "")
	v.SetDefault("ors_api_key", "")
	v.SetDefault("provider_rate_per_second", 10.0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "delivery-estimates")

	d := DefaultEstimation()
	v.SetDefault("estimation.base_time_minutes", d.BaseTimeMinutes)
	v.SetDefault("estimation.distance_factor_minutes_per_mile", d.DistanceFactorMinutesPerMile)
	v.SetDefault("estimation.load_minutes_per_order", d.LoadMinutesPerOrder)
	v.SetDefault("estimation.random_variation_min", d.RandomVariationMin)
	v.SetDefault("estimation.random_variation_max", d.RandomVariationMax)
	v.SetDefault("estimation.min_delivery_minutes", d.MinDeliveryMinutes)
	v.SetDefault("estimation.max_delivery_minutes", d.MaxDeliveryMinutes)
	v.SetDefault("estimation.delivery_radius_miles", d.DeliveryRadiusMiles)
	v.SetDefault("estimation.max_concurrent_deliveries", d.MaxConcurrentDeliveries)
	v.SetDefault("estimation.restaurant.address", d.Restaurant.Address)
	v.SetDefault("estimation.restaurant.lat", d.Restaurant.Lat)
	v.SetDefault("estimation.restaurant.lng", d.Restaurant.Lng)
	v.SetDefault("estimation.distance_cache_ttl", d.DistanceCacheTTL)
	v.SetDefault("estimation.provider_timeout", d.ProviderTimeout)
}

// Load reads .env (if present), then cfgFile (if set), then the environment.
// Nested keys map to env vars with dots replaced by underscores, e.g.
// ESTIMATION_DELIVERY_RADIUS_MILES.
func Load(cfgFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config: read %q: %w", cfgFile, err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	decoderConfigOption := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err := v.Unmarshal(&cfg, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("load config: decode: %w", err)
	}

	if err := cfg.Estimation.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return &cfg, nil
}
