package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"flightstatus-service/internal/interface/vendor"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// App
	AppVersion string

	// Server
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MongoDB
	MongoURI      string
	MongoDB       string
	MongoUser     string
	MongoPassword string

	// PostgreSQL reference data
	PostgresURI string

	// Redis cache; empty address selects the in-memory cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Flight tracker
	FlightCacheTTL    time.Duration
	StrictTransitions bool
	VendorConfigPath  string
	Vendors           []vendor.Config

	// Webhook dispatcher
	DeliveryConcurrency int64
	DeliveryTimeout     time.Duration
	ProbeTimeout        time.Duration
	RetryInterval       time.Duration
}

// vendorFile is the TOML shape of the vendor configuration file.
type vendorFile struct {
	Vendors []vendor.Config `toml:"vendors"`
}

// LoadConfig loads configuration from environment variables and the
// vendor TOML file.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		AppVersion:   getEnv("APP_VERSION", "1.0.0"),
		Port:         getEnv("PORT", "8080"),
		ReadTimeout:  time.Duration(getEnvAsInt("READ_TIMEOUT", 30)) * time.Second,
		WriteTimeout: time.Duration(getEnvAsInt("WRITE_TIMEOUT", 30)) * time.Second,

		MongoURI:      getEnv("MONGODB_DSN", "mongodb://localhost:27017"),
		MongoDB:       getEnv("MONGO_DB", "flightstatus"),
		MongoUser:     getEnv("MONGO_USER", ""),
		MongoPassword: getEnv("MONGO_PASSWORD", ""),

		PostgresURI: getEnv("POSTGRES_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		FlightCacheTTL:    time.Duration(getEnvAsInt("FLIGHT_CACHE_TTL", 300)) * time.Second,
		StrictTransitions: getEnvAsBool("STRICT_TRANSITIONS", false),
		VendorConfigPath:  getEnv("VENDOR_CONFIG", "vendors.toml"),

		DeliveryConcurrency: int64(getEnvAsInt("DELIVERY_CONCURRENCY", 50)),
		DeliveryTimeout:     time.Duration(getEnvAsInt("DELIVERY_TIMEOUT", 5)) * time.Second,
		ProbeTimeout:        time.Duration(getEnvAsInt("PROBE_TIMEOUT", 3)) * time.Second,
		RetryInterval:       time.Duration(getEnvAsInt("RETRY_INTERVAL", 60)) * time.Second,
	}

	if raw, err := os.ReadFile(config.VendorConfigPath); err == nil {
		var vf vendorFile
		// ${VAR} references in the vendor file resolve against the
		// environment, so API keys stay out of the file itself.
		if _, err := toml.Decode(os.ExpandEnv(string(raw)), &vf); err != nil {
			return nil, fmt.Errorf("parse vendor config %s: %w", config.VendorConfigPath, err)
		}
		config.Vendors = vf.Vendors
	}

	return config, nil
}

// Helper functions to get environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
