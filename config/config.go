package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Local development origins that are always allowed to open a relay connection.
var DevOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
}

type Config struct {
	AppMode         string
	SocketPort      string
	ClientURL       string
	AllowedOrigins  []string
	StrictMode      bool
	PersistTimeout  time.Duration
	ShutdownTimeout time.Duration

	MessageStore    string
	MongoURI        string
	MongoDB         string
	MongoCollection string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	PresenceTTL   time.Duration

	ConnectLimit  int
	ConnectWindow time.Duration
}

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	clientURL := getEnv("CLIENT_URL", "http://localhost:3000")

	return &Config{
		AppMode:         getEnv("APP_MODE", "debug"),
		SocketPort:      getEnv("SOCKET_PORT", "3001"),
		ClientURL:       clientURL,
		AllowedOrigins:  buildOrigins(clientURL, getEnvAsList("ALLOWED_ORIGINS")),
		StrictMode:      getEnvAsBool("RELAY_STRICT", false),
		PersistTimeout:  time.Duration(getEnvAsInt("PERSIST_TIMEOUT_MS", 10000)) * time.Millisecond,
		ShutdownTimeout: time.Duration(getEnvAsInt("SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second,

		MessageStore:    strings.ToLower(getEnv("MESSAGE_STORE", StoreMongo)),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:         getEnv("MONGO_DB", "pitchhub"),
		MongoCollection: getEnv("MONGO_COLLECTION", "messages"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "pitchhub"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisEnabled:  getEnvAsBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		PresenceTTL:   time.Duration(getEnvAsInt("PRESENCE_TTL_SEC", 300)) * time.Second,

		ConnectLimit:  getEnvAsInt("RATE_LIMIT_CONNECT", 30),
		ConnectWindow: time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_SEC", 60)) * time.Second,
	}
}

// buildOrigins merges the client URL, the fixed development origins and any
// extra configured origins, dropping blanks and duplicates.
func buildOrigins(clientURL string, extra []string) []string {
	seen := make(map[string]struct{})
	var origins []string
	add := func(o string) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			return
		}
		if _, ok := seen[o]; ok {
			return
		}
		seen[o] = struct{}{}
		origins = append(origins, o)
	}

	add(clientURL)
	for _, o := range DevOrigins {
		add(o)
	}
	for _, o := range extra {
		add(o)
	}
	return origins
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return nil
	}
	return strings.Split(valueStr, ",")
}
