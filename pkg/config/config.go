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
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	TCPServer  TCPServerConfig
	SPC        SPCConfig
	Alerting   AlertingConfig
	Aggregator AggregatorConfig
	SMTP       SMTPConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	TopicReadings string
	TopicAlerts   string
	NumPartitions int
}

type TCPServerConfig struct {
	Port              int
	MaxConnections    int
	IdentifyTimeout   time.Duration
	InactivityTimeout time.Duration
}

// SPCConfig holds the statistical engine parameters.
type SPCConfig struct {
	WindowSize        int     // rolling window capacity per parameter
	SubgroupSize      int     // most-recent slice used for the subgroup range
	MinSamples        int     // minimum window length before capability is reported
	SigmaLevel        float64 // multiplier for derived control limits
	ClockSkew         time.Duration
	RejectOutOfOrder  bool
	ThresholdCacheTTL time.Duration
}

type AlertingConfig struct {
	EscalationAge   time.Duration
	SweepInterval   time.Duration
	StateTTL        time.Duration
	DispatchRetries int
	DispatchBackoff time.Duration
}

type AggregatorConfig struct {
	HourlyDelay time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "spc_user"),
			Password: getEnv("DB_PASSWORD", "spc_pass"),
			DBName:   getEnv("DB_NAME", "spc_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicReadings: getEnv("KAFKA_TOPIC_READINGS", "spc.readings.validated"),
			TopicAlerts:   getEnv("KAFKA_TOPIC_ALERTS", "spc.alerts"),
			NumPartitions: getEnvAsInt("KAFKA_NUM_PARTITIONS", 10),
		},
		TCPServer: TCPServerConfig{
			Port:              getEnvAsInt("TCP_PORT", 8080),
			MaxConnections:    getEnvAsInt("TCP_MAX_CONNECTIONS", 10000),
			IdentifyTimeout:   getEnvAsDuration("TCP_IDENTIFY_TIMEOUT", 10*time.Second),
			InactivityTimeout: getEnvAsDuration("TCP_INACTIVITY_TIMEOUT", 2*time.Minute),
		},
		SPC: SPCConfig{
			WindowSize:        getEnvAsInt("SPC_WINDOW_SIZE", 30),
			SubgroupSize:      getEnvAsInt("SPC_SUBGROUP_SIZE", 5),
			MinSamples:        getEnvAsInt("SPC_MIN_SAMPLES", 10),
			SigmaLevel:        getEnvAsFloat("SPC_SIGMA_LEVEL", 3.0),
			ClockSkew:         getEnvAsDuration("SPC_CLOCK_SKEW", 5*time.Second),
			RejectOutOfOrder:  getEnvAsBool("SPC_REJECT_OUT_OF_ORDER", true),
			ThresholdCacheTTL: getEnvAsDuration("SPC_THRESHOLD_CACHE_TTL", 5*time.Minute),
		},
		Alerting: AlertingConfig{
			EscalationAge:   getEnvAsDuration("ALERT_ESCALATION_AGE", time.Hour),
			SweepInterval:   getEnvAsDuration("ALERT_SWEEP_INTERVAL", 15*time.Minute),
			StateTTL:        getEnvAsDuration("ALERT_STATE_TTL", 7*24*time.Hour),
			DispatchRetries: getEnvAsInt("ALERT_DISPATCH_RETRIES", 3),
			DispatchBackoff: getEnvAsDuration("ALERT_DISPATCH_BACKOFF", 2*time.Second),
		},
		Aggregator: AggregatorConfig{
			HourlyDelay: getEnvAsDuration("AGGREGATOR_HOURLY_DELAY", 5*time.Minute),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "spc-server@example.com"),
			To:       getEnv("SMTP_TO", "quality@example.com"),
		},
	}

	if err := config.SPC.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects statistically meaningless engine settings.
func (s SPCConfig) Validate() error {
	if s.WindowSize < 2 {
		return fmt.Errorf("SPC window size must be at least 2, got %d", s.WindowSize)
	}
	if s.SubgroupSize < 2 || s.SubgroupSize > s.WindowSize {
		return fmt.Errorf("SPC subgroup size must be in [2, window size], got %d", s.SubgroupSize)
	}
	if s.MinSamples < 2 || s.MinSamples > s.WindowSize {
		return fmt.Errorf("SPC min samples must be in [2, window size], got %d", s.MinSamples)
	}
	if s.SigmaLevel <= 0 || s.SigmaLevel > 6 {
		return fmt.Errorf("SPC sigma level must be in (0, 6], got %.2f", s.SigmaLevel)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
