package config

import (
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Env              string `mapstructure:"env"`
	Port             int    `mapstructure:"port"`
	JWTSecret        string `mapstructure:"jwt_secret"`
	EnablePrometheus bool   `mapstructure:"enable_prometheus"`
}

type MongoConfig struct {
	URI                   string `mapstructure:"uri"`
	Database              string `mapstructure:"database"`
	CredentialsCollection string `mapstructure:"credentials_collection"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Brokers          []string `mapstructure:"brokers"`
	TopicMessageSent string   `mapstructure:"topic_message_sent"`
}

type NatsConfig struct {
	URL string `mapstructure:"url"`
}

type QueryConfig struct {
	MessageLimit int `mapstructure:"message_limit"`
}

type AuthConfig struct {
	AccessTTLMinutes int `mapstructure:"access_ttl_minutes"`
	RefreshTTLDays   int `mapstructure:"refresh_ttl_days"`
}

type Config struct {
	App   AppConfig   `mapstructure:"app"`
	Mongo MongoConfig `mapstructure:"mongodb"`
	Redis RedisConfig `mapstructure:"redis"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	Nats  NatsConfig  `mapstructure:"nats"`
	Query QueryConfig `mapstructure:"query"`
	Auth  AuthConfig  `mapstructure:"auth"`
	// derived values
	RequestTimeout time.Duration
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	// sensible defaults
	if c.App.Port == 0 {
		c.App.Port = 8084
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "chatsync"
	}
	if c.Mongo.CredentialsCollection == "" {
		c.Mongo.CredentialsCollection = "credentials"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "chatsync"
	}
	if c.Kafka.TopicMessageSent == "" {
		c.Kafka.TopicMessageSent = "message.sent"
	}
	if c.Query.MessageLimit == 0 {
		c.Query.MessageLimit = 50
	}
	if c.Auth.AccessTTLMinutes == 0 {
		c.Auth.AccessTTLMinutes = 15
	}
	if c.Auth.RefreshTTLDays == 0 {
		c.Auth.RefreshTTLDays = 7
	}
	c.RequestTimeout = 10 * time.Second
	c.AccessTTL = time.Duration(c.Auth.AccessTTLMinutes) * time.Minute
	c.RefreshTTL = time.Duration(c.Auth.RefreshTTLDays) * 24 * time.Hour
	return &c, nil
}
