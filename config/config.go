package config

import (
	"log"
	"os"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
)

// AlgorithmConfig holds the tunable parameters of the queue generation
// algorithm. It is kept separate from Config so it can be swapped at
// runtime when the env file changes (see watch.go).
type AlgorithmConfig struct {
	DiscoveryRatio    float64 // share of each batch reserved for discoveries
	MinArtistGap      int     // minimum tracks between two tracks of the same artist
	MaxGenreRatio     float64 // maximum share of any single genre in the recent window
	QueuePrefetchSize int     // default batch size when the caller does not ask for one
	QueueLowWater     int     // unplayed count below which a fresh batch is appended
}

// Config stores the application configuration.
type Config struct {
	ServerAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	JWTSecret string

	LogPath  string
	LogLevel string

	mu  sync.RWMutex
	alg AlgorithmConfig
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvFloat gets an environment variable as float64 or returns a default value.
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	cfg := &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for passwords
		DBName:     getEnv("DB_NAME", "mixfm"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "mixfm"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-production"),

		LogPath:  getEnv("LOG_PATH", "logs/mixfm.log"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	cfg.alg = loadAlgorithm()
	return cfg
}

// loadAlgorithm reads the algorithm tuning from the environment.
func loadAlgorithm() AlgorithmConfig {
	return AlgorithmConfig{
		DiscoveryRatio:    getEnvFloat("DISCOVERY_RATIO", 0.25),
		MinArtistGap:      getEnvInt("MIN_ARTIST_GAP", 5),
		MaxGenreRatio:     getEnvFloat("MAX_GENRE_RATIO", 0.4),
		QueuePrefetchSize: getEnvInt("QUEUE_PREFETCH_SIZE", 20),
		QueueLowWater:     getEnvInt("QUEUE_LOW_WATER", 5),
	}
}

// Algorithm returns the current algorithm tuning. Safe for concurrent use.
func (c *Config) Algorithm() AlgorithmConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alg
}

// SetAlgorithm replaces the algorithm tuning. Used by the env watcher and tests.
func (c *Config) SetAlgorithm(alg AlgorithmConfig) {
	c.mu.Lock()
	c.alg = alg
	c.mu.Unlock()
}
