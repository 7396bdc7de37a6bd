package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// App mode & server
	Mode        string
	ServerAddr  string
	TLSCertFile string
	TLSKeyFile  string
	LogLevel    string

	// Auth
	JWTSecret  string
	JWTTTL     time.Duration
	BcryptCost int

	// Document store: cassandra, mongo or memory
	StoreBackend string

	// Kafka
	KafkaBroker    string
	KafkaTopic     string
	KafkaGroupID   string
	KafkaPartition int
	KafkaReadTO    time.Duration
	KafkaWriteTO   time.Duration

	// Cassandra
	CassandraHost     string
	CassandraKeyspace string
	CassandraUsername string
	CassandraPassword string
	CassandraTimeout  time.Duration
	CassandraDC       string
	MigrationsPath    string

	// MongoDB
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration

	// Redis (tag cache, optional)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TagsCacheTTL  time.Duration
}

// Init loads the config using Viper and returns it
func Init() *Config {
	v := viper.New()

	v.SetDefault("MODE", "server")
	v.SetDefault("SERVER_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("BCRYPT_COST", 10)

	v.SetDefault("STORE_BACKEND", "cassandra")

	v.SetDefault("KAFKA_BROKER", "localhost:29092")
	v.SetDefault("KAFKA_TOPIC", "user-events")
	v.SetDefault("KAFKA_GROUP_ID", "worker-group")
	v.SetDefault("KAFKA_PARTITION", 0)
	v.SetDefault("KAFKA_READ_TIMEOUT", "10s")
	v.SetDefault("KAFKA_WRITE_TIMEOUT", "10s")

	v.SetDefault("CASSANDRA_HOST", "localhost")
	v.SetDefault("CASSANDRA_KEYSPACE", "conduit")
	v.SetDefault("CASSANDRA_TIMEOUT", "10s")
	v.SetDefault("MIGRATIONS_PATH", "./migrations/cassandra")
	// Optional: Cassandra username/password/DC can be empty

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "conduit")
	v.SetDefault("MONGO_TIMEOUT", "10s")

	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("TAGS_CACHE_TTL", "5m")

	// Load env variables
	v.AutomaticEnv()

	// Optional config file support
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig() // ignore error if no file

	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Mode:              v.GetString("MODE"),
		ServerAddr:        v.GetString("SERVER_ADDR"),
		TLSCertFile:       v.GetString("TLS_CERT_FILE"),
		TLSKeyFile:        v.GetString("TLS_KEY_FILE"),
		LogLevel:          v.GetString("LOG_LEVEL"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		JWTTTL:            parseDuration(v.GetString("JWT_TTL"), 24*time.Hour),
		BcryptCost:        v.GetInt("BCRYPT_COST"),
		StoreBackend:      strings.ToLower(v.GetString("STORE_BACKEND")),
		KafkaBroker:       v.GetString("KAFKA_BROKER"),
		KafkaTopic:        v.GetString("KAFKA_TOPIC"),
		KafkaGroupID:      v.GetString("KAFKA_GROUP_ID"),
		KafkaPartition:    v.GetInt("KAFKA_PARTITION"),
		KafkaReadTO:       parseDuration(v.GetString("KAFKA_READ_TIMEOUT"), 10*time.Second),
		KafkaWriteTO:      parseDuration(v.GetString("KAFKA_WRITE_TIMEOUT"), 10*time.Second),
		CassandraHost:     v.GetString("CASSANDRA_HOST"),
		CassandraKeyspace: v.GetString("CASSANDRA_KEYSPACE"),
		CassandraUsername: v.GetString("CASSANDRA_USERNAME"),
		CassandraPassword: v.GetString("CASSANDRA_PASSWORD"),
		CassandraTimeout:  parseDuration(v.GetString("CASSANDRA_TIMEOUT"), 10*time.Second),
		CassandraDC:       v.GetString("CASSANDRA_DC"),
		MigrationsPath:    v.GetString("MIGRATIONS_PATH"),
		MongoURI:          v.GetString("MONGO_URI"),
		MongoDatabase:     v.GetString("MONGO_DATABASE"),
		MongoTimeout:      parseDuration(v.GetString("MONGO_TIMEOUT"), 10*time.Second),
		RedisAddr:         v.GetString("REDIS_ADDR"),
		RedisPassword:     v.GetString("REDIS_PASSWORD"),
		RedisDB:           v.GetInt("REDIS_DB"),
		TagsCacheTTL:      parseDuration(v.GetString("TAGS_CACHE_TTL"), 5*time.Minute),
	}
}

func parseDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}
