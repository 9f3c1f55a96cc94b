package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config is the root configuration, loaded once at startup.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Trusted  TrustedConfig  `mapstructure:"trusted"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	RedemptionEvents   string `mapstructure:"redemption_events"`
	AdminNotifications string `mapstructure:"admin_notifications"`
}

// TrustedConfig points at the privileged callable endpoints. The redeem
// callable is the primary execution path for redemptions; when it is
// unreachable the orchestrator falls back to a local transaction.
type TrustedConfig struct {
	RedeemURL string `mapstructure:"redeem_url"`
	TrackURL  string `mapstructure:"track_url"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

type BusinessConfig struct {
	CouponCreationCost int64 `mapstructure:"coupon_creation_cost"` // credits charged per published coupon
	ReferrerBonus      int64 `mapstructure:"referrer_bonus"`       // one-time bonus per referred shop owner
	KeyValidityHours   int   `mapstructure:"key_validity_hours"`   // credit key lifetime after generation
	MaxRetryCount      int   `mapstructure:"max_retry_count"`      // outbox publish retries before FAILED
}

var GlobalConfig *Config

// LoadConfig reads and unmarshals the yaml configuration file.
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}

	GlobalConfig = config
	return config
}
