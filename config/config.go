package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort   int
	JWTSecret    string
	LogFormat    string
	StoreTimeout time.Duration
	AuthDB       AuthDBConfig
	Database     DatabaseConfig
	MQ           MQConfig
	Storage      StorageConfig
	GameServer   GameServerConfig
	Inference    InferenceConfig
	Relay        RelayConfig
}

// AuthDBConfig points at the game server's MySQL auth database, which owns
// the account table.
type AuthDBConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	CharactersDB string
}

// DatabaseConfig points at the dashboard's own Postgres database.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

type MQConfig struct {
	// Backend selects the bus implementation: "redis", "rabbitmq" or "pubsub".
	Backend  string
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	URL           string
	PrefetchCount int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type StorageConfig struct {
	// Backend selects "minio" or "gcs". Empty disables directory exports.
	Backend string
	// ExportRetain is how many directory exports to keep; older ones are pruned.
	ExportRetain int
	Minio        MinioConfig
	GCS          GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type GameServerConfig struct {
	Host      string
	WorldPort int
	AuthPort  int
	SOAPHost  string
	SOAPPort  int
}

type InferenceConfig struct {
	URL string
}

type RelayConfig struct {
	Channel   string
	QueueSize int
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	authDB := AuthDBConfig{
		Host:         getEnv("AC_MYSQL_HOST", "localhost"),
		Port:         getEnvInt("AC_MYSQL_PORT", 3306),
		User:         getEnv("AC_MYSQL_USER", "acore"),
		Password:     getEnv("AC_MYSQL_PASSWORD", "acore"),
		DBName:       getEnv("AC_MYSQL_AUTH_DB", "acore_auth"),
		CharactersDB: getEnv("AC_MYSQL_CHARACTERS_DB", "acore_characters"),
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "cerebro"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "cerebro"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	mqConfig := MQConfig{
		Backend: getEnv("MQ_BACKEND", "redis"),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URL:           getEnv("RABBITMQ_URL", ""),
			PrefetchCount: getEnvInt("RABBITMQ_PREFETCH", 0),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	storageConfig := StorageConfig{
		Backend:      getEnv("STORAGE_BACKEND", ""),
		ExportRetain: getEnvInt("EXPORT_RETAIN", 10),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "cerebro"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	gameHost := getEnv("AC_SERVER_HOST", "localhost")
	gameServer := GameServerConfig{
		Host:      gameHost,
		WorldPort: getEnvInt("AC_WORLD_PORT", 8085),
		AuthPort:  getEnvInt("AC_AUTH_PORT", 3724),
		SOAPHost:  getEnv("AC_SOAP_HOST", gameHost),
		SOAPPort:  getEnvInt("AC_SOAP_PORT", 7878),
	}

	return Config{
		ServerPort:   getEnvInt("SERVER_PORT", 8080),
		JWTSecret:    strings.TrimSpace(getEnv("JWT_SECRET", "")),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
		StoreTimeout: getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		AuthDB:       authDB,
		Database:     dbConfig,
		MQ:           mqConfig,
		Storage:      storageConfig,
		GameServer:   gameServer,
		Inference: InferenceConfig{
			URL: getEnv("VLLM_URL", "http://localhost:8000"),
		},
		Relay: RelayConfig{
			Channel:   getEnv("RELAY_CHANNEL", "cerebro:events"),
			QueueSize: getEnvInt("RELAY_QUEUE_SIZE", 64),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil || value <= 0 {
			return defaultValue
		}
		return value
	}
	return defaultValue
}
