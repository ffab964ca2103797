package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	MQTT        MQTTConfig
	Device      DeviceConfig
	Reservation ReservationConfig
	Monitor     MonitorConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret string
}

type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	KeepAlive      int
	ConnectTimeout int
	QoS            byte
	TopicPrefix    string
}

// DeviceConfig gathers the connectivity tunables. Queue depth and retry
// budget are deliberately configuration, not constants.
type DeviceConfig struct {
	HeartbeatInterval  time.Duration
	HeartbeatMisses    int
	ConnectTimeout     time.Duration
	CommandTimeout     time.Duration
	MaxConnectAttempts int
	CommandQueueDepth  int
	PollInterval       time.Duration
	IngestBatchSize    int
	IngestFlushPeriod  time.Duration
}

type ReservationConfig struct {
	SweepInterval time.Duration
	AutoApprove   bool
}

type MonitorConfig struct {
	RollingWindow time.Duration
}

type RateLimitConfig struct {
	GeneralRPS   float64 // Requests per second for general endpoints
	GeneralBurst int     // Burst size for general endpoints
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AddConfigPath(".")
	if homeDir, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(homeDir)
	}
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Printf("Warning: config file not found: %v. Falling back to environment variables only.", err)
	}

	config := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("SERVER_PORT"),
			Host:        viper.GetString("SERVER_HOST"),
			Environment: viper.GetString("ENVIRONMENT"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			DBName:   viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
		MQTT: MQTTConfig{
			Broker:         viper.GetString("MQTT_BROKER"),
			ClientID:       viper.GetString("MQTT_CLIENT_ID"),
			Username:       viper.GetString("MQTT_USERNAME"),
			Password:       viper.GetString("MQTT_PASSWORD"),
			KeepAlive:      viper.GetInt("MQTT_KEEPALIVE_SECONDS"),
			ConnectTimeout: viper.GetInt("MQTT_CONNECT_TIMEOUT_SECONDS"),
			QoS:            byte(viper.GetUint("MQTT_QOS")),
			TopicPrefix:    viper.GetString("MQTT_TOPIC_PREFIX"),
		},
		Device: DeviceConfig{
			HeartbeatInterval:  viper.GetDuration("DEVICE_HEARTBEAT_INTERVAL"),
			HeartbeatMisses:    viper.GetInt("DEVICE_HEARTBEAT_MISSES"),
			ConnectTimeout:     viper.GetDuration("DEVICE_CONNECT_TIMEOUT"),
			CommandTimeout:     viper.GetDuration("DEVICE_COMMAND_TIMEOUT"),
			MaxConnectAttempts: viper.GetInt("DEVICE_MAX_CONNECT_ATTEMPTS"),
			CommandQueueDepth:  viper.GetInt("DEVICE_COMMAND_QUEUE_DEPTH"),
			PollInterval:       viper.GetDuration("DEVICE_POLL_INTERVAL"),
			IngestBatchSize:    viper.GetInt("INGEST_BATCH_SIZE"),
			IngestFlushPeriod:  viper.GetDuration("INGEST_FLUSH_PERIOD"),
		},
		Reservation: ReservationConfig{
			SweepInterval: viper.GetDuration("RESERVATION_SWEEP_INTERVAL"),
			AutoApprove:   viper.GetBool("RESERVATION_AUTO_APPROVE"),
		},
		Monitor: MonitorConfig{
			RollingWindow: viper.GetDuration("MONITOR_ROLLING_WINDOW"),
		},
		RateLimit: RateLimitConfig{
			GeneralRPS:   viper.GetFloat64("RATE_LIMIT_GENERAL_RPS"),
			GeneralBurst: viper.GetInt("RATE_LIMIT_GENERAL_BURST"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   viper.GetStringSlice("CORS_ALLOWED_ORIGINS"),
			AllowedMethods:   viper.GetStringSlice("CORS_ALLOWED_METHODS"),
			AllowedHeaders:   viper.GetStringSlice("CORS_ALLOWED_HEADERS"),
			ExposedHeaders:   viper.GetStringSlice("CORS_EXPOSED_HEADERS"),
			AllowCredentials: viper.GetBool("CORS_ALLOW_CREDENTIALS"),
			MaxAge:           viper.GetInt("CORS_MAX_AGE"),
		},
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("DEVICE_HEARTBEAT_INTERVAL", "10s")
	viper.SetDefault("DEVICE_HEARTBEAT_MISSES", 3)
	viper.SetDefault("DEVICE_CONNECT_TIMEOUT", "15s")
	viper.SetDefault("DEVICE_COMMAND_TIMEOUT", "30s")
	viper.SetDefault("DEVICE_MAX_CONNECT_ATTEMPTS", 5)
	viper.SetDefault("DEVICE_COMMAND_QUEUE_DEPTH", 64)
	viper.SetDefault("DEVICE_POLL_INTERVAL", "2s")
	viper.SetDefault("INGEST_BATCH_SIZE", 100)
	viper.SetDefault("INGEST_FLUSH_PERIOD", "5s")
	viper.SetDefault("RESERVATION_SWEEP_INTERVAL", "30s")
	viper.SetDefault("RESERVATION_AUTO_APPROVE", false)
	viper.SetDefault("MONITOR_ROLLING_WINDOW", "24h")
	viper.SetDefault("MQTT_KEEPALIVE_SECONDS", 30)
	viper.SetDefault("MQTT_CONNECT_TIMEOUT_SECONDS", 10)
	viper.SetDefault("MQTT_QOS", 1)
	viper.SetDefault("MQTT_TOPIC_PREFIX", "lab/devices")
	viper.SetDefault("RATE_LIMIT_GENERAL_RPS", 50.0)
	viper.SetDefault("RATE_LIMIT_GENERAL_BURST", 100)
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
