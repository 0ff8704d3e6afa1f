package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Transport kinds for ServiceConfig.Transport.
const (
	TransportGRPC   = "grpc"
	TransportBroker = "broker"
)

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Web       WebConfig       `yaml:"web"`
	Services  ServicesConfig  `yaml:"services"`
	Backend   BackendConfig   `yaml:"backend"`
	Messaging MessagingConfig `yaml:"messaging"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type WebConfig struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
	// TokenHash is a bcrypt hash of the bearer token. Empty disables auth.
	TokenHash   string        `yaml:"token_hash" env:"GATEWAY_TOKEN_HASH"`
	CORSOrigins []string      `yaml:"cors_origins" env:"CORS_ORIGINS"`
	RateLimit   RateConfig    `yaml:"rate_limit"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type RateConfig struct {
	RPS   float64 `yaml:"rps" env:"RATE_LIMIT_RPS"`
	Burst int     `yaml:"burst" env:"RATE_LIMIT_BURST"`
}

type ServicesConfig struct {
	Users    ServiceConfig `yaml:"users" envPrefix:"USER_SERVICE_"`
	Products ServiceConfig `yaml:"products" envPrefix:"PRODUCT_SERVICE_"`
}

// ServiceConfig locates one backend from the gateway's side.
type ServiceConfig struct {
	Host      string        `yaml:"host" env:"HOST"`
	Port      int           `yaml:"port" env:"PORT"`
	Transport string        `yaml:"transport" env:"TRANSPORT"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// Addr returns host:port.
func (s ServiceConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BackendConfig configures a relayd process.
type BackendConfig struct {
	Domain string `yaml:"domain" env:"SERVICE_DOMAIN"`
	Host   string `yaml:"host" env:"MICROSERVICE_HOST"`
	Port   int    `yaml:"port" env:"MICROSERVICE_PORT"`
}

type MessagingConfig struct {
	Enabled     bool        `yaml:"enabled" env:"MESSAGING_ENABLED"`
	Backend     string      `yaml:"backend" env:"MESSAGING_BACKEND"` // kafka or mqtt
	TopicPrefix string      `yaml:"topic_prefix" env:"MESSAGING_TOPIC_PREFIX"`
	Kafka       KafkaConfig `yaml:"kafka"`
	MQTT        MQTTConfig  `yaml:"mqtt"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS"`
	GroupID string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker" env:"MQTT_BROKER"`
	Port     int    `yaml:"port" env:"MQTT_PORT"`
	ClientID string `yaml:"client_id" env:"MQTT_CLIENT_ID"`
}

// CommandTopic returns the topic a domain's backend consumes commands from.
func (m MessagingConfig) CommandTopic(domain string) string {
	return m.TopicPrefix + "." + domain + ".commands"
}

// ReplyTopic returns the topic a gateway instance consumes replies from.
func (m MessagingConfig) ReplyTopic(instance string) string {
	return m.TopicPrefix + ".replies." + instance
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver" env:"DB_DRIVER"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" env:"DB_PATH"`
}

type PostgresConfig struct {
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT"`
	Database string `yaml:"database" env:"DB_NAME"`
	User     string `yaml:"user" env:"DB_USERNAME"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	SSLMode  string `yaml:"sslmode" env:"DB_SSLMODE"`
}

type RedisConfig struct {
	Address  string        `yaml:"address" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB"`
	TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL"`
}

type TelemetryConfig struct {
	// Endpoint is an OTLP/HTTP URL. Empty disables tracing.
	Endpoint    string `yaml:"endpoint" env:"OTEL_ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"OTEL_SERVICE_NAME"`
}

func Defaults() *Config {
	return &Config{
		Web: WebConfig{
			Host:        "0.0.0.0",
			Port:        3000,
			CORSOrigins: []string{"*"},
			ReadTimeout: 15 * time.Second,
		},
		Services: ServicesConfig{
			Users: ServiceConfig{
				Host:      "localhost",
				Port:      3001,
				Transport: TransportGRPC,
				Timeout:   5 * time.Second,
			},
			Products: ServiceConfig{
				Host:      "localhost",
				Port:      3002,
				Transport: TransportGRPC,
				Timeout:   5 * time.Second,
			},
		},
		Backend: BackendConfig{
			Host: "0.0.0.0",
		},
		Messaging: MessagingConfig{
			Backend:     "kafka",
			TopicPrefix: "relaygate",
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "relaygate",
			},
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "relaygate",
			},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "relayd.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "relaygate",
				User:     "postgres",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address: "",
			DB:      0,
			TTL:     5 * time.Minute,
		},
	}
}

// Load reads the yaml file at path over Defaults, then applies environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail late at dial or listen time.
func (c *Config) Validate() error {
	for name, s := range map[string]ServiceConfig{"users": c.Services.Users, "products": c.Services.Products} {
		switch s.Transport {
		case TransportGRPC, TransportBroker:
		default:
			return fmt.Errorf("services.%s: unknown transport %q", name, s.Transport)
		}
		if s.Timeout <= 0 {
			return fmt.Errorf("services.%s: timeout must be positive", name)
		}
	}
	switch c.Messaging.Backend {
	case "kafka", "mqtt":
	default:
		return fmt.Errorf("messaging: unknown backend %q", c.Messaging.Backend)
	}
	return nil
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Lock()   { c.mu.Lock() }
func (c *Config) Unlock() { c.mu.Unlock() }
