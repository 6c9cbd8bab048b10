package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Env            string `mapstructure:"env"`
	Port           int    `mapstructure:"port"`
	ShutdownSecond int    `mapstructure:"shutdown_seconds"`
	SendsPerMinute int    `mapstructure:"sends_per_minute"` // per user, 0 disables
}

func (a *AppConfig) PortString() string { return fmt.Sprintf("%d", a.Port) }

type MongoConfig struct {
	URI             string `mapstructure:"uri"`
	Database        string `mapstructure:"database"`
	UseTransactions bool   `mapstructure:"use_transactions"`
}

type RedisConfig struct {
	Addr              string `mapstructure:"addr"`
	Password          string `mapstructure:"password"`
	DB                int    `mapstructure:"db"`
	Prefix            string `mapstructure:"prefix"`
	PresenceTTLSecond int    `mapstructure:"presence_ttl_seconds"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	TopicEvents    string   `mapstructure:"topic_events"`
	TopicBlocks    string   `mapstructure:"topic_blocks"`
	GroupID        string   `mapstructure:"group_id"`
	MaxRetries     int      `mapstructure:"max_retries"`
	RetryBackoffMs int      `mapstructure:"retry_backoff_ms"`
}

type JWTConfig struct {
	Alg           string `mapstructure:"alg"`
	HSSecret      string `mapstructure:"hs_secret"`
	PublicKeyPath string `mapstructure:"public_key_path"`
}

type PushConfig struct {
	Provider        string `mapstructure:"provider"` // fcm | log
	CredentialsFile string `mapstructure:"credentials_file"`
	Title           string `mapstructure:"title"`
	BreakerFailures int    `mapstructure:"breaker_failures"`
	BreakerSeconds  int    `mapstructure:"breaker_seconds"`
}

type StorageConfig struct {
	Backend     string `mapstructure:"backend"` // s3 | local
	LocalDir    string `mapstructure:"local_dir"`
	Region      string `mapstructure:"region"`
	Bucket      string `mapstructure:"bucket"`
	Endpoint    string `mapstructure:"endpoint"`
	MaxImageDim int    `mapstructure:"max_image_dim"`
	MaxImages   int    `mapstructure:"max_images"`
}

type LockConfig struct {
	Backend   string `mapstructure:"backend"` // memory | redis
	TTLSecond int    `mapstructure:"ttl_seconds"`
}

type ConsulConfig struct {
	Addr        string `mapstructure:"addr"` // empty disables registration
	ServiceName string `mapstructure:"service_name"`
	ServiceHost string `mapstructure:"service_host"`
}

type WSConfig struct {
	PingIntervalSeconds  int   `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64 `mapstructure:"max_message_size_bytes"`
}

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Push    PushConfig    `mapstructure:"push"`
	Storage StorageConfig `mapstructure:"storage"`
	Lock    LockConfig    `mapstructure:"lock"`
	WS      WSConfig      `mapstructure:"ws"`
	Consul  ConsulConfig  `mapstructure:"consul"`

	// derived
	ShutdownTimeout time.Duration
	PresenceTTL     time.Duration
	LockTTL         time.Duration
	PingInterval    time.Duration
	WriteDeadline   time.Duration
	BreakerTimeout  time.Duration
}

func (c *Config) Dev() bool { return c.App.Env == "development" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.shutdown_seconds", 15)
	v.SetDefault("app.sends_per_minute", 120)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "chat")
	v.SetDefault("mongo.use_transactions", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "mailbox")
	v.SetDefault("redis.presence_ttl_seconds", 86400)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_events", "chat.mailbox.events")
	v.SetDefault("kafka.topic_blocks", "relationship.blocked")
	v.SetDefault("kafka.group_id", "mailbox-service")
	v.SetDefault("kafka.max_retries", 5)
	v.SetDefault("kafka.retry_backoff_ms", 500)
	v.SetDefault("jwt.alg", "HS256")
	v.SetDefault("jwt.hs_secret", "")
	v.SetDefault("jwt.public_key_path", "")
	v.SetDefault("push.provider", "log")
	v.SetDefault("push.credentials_file", "")
	v.SetDefault("push.title", "New message")
	v.SetDefault("push.breaker_failures", 5)
	v.SetDefault("push.breaker_seconds", 30)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "uploads/images")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.max_image_dim", 1280)
	v.SetDefault("storage.max_images", 10)
	v.SetDefault("lock.backend", "memory")
	v.SetDefault("lock.ttl_seconds", 30)
	v.SetDefault("ws.ping_interval_seconds", 25)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.max_message_size_bytes", 4096)
	v.SetDefault("consul.addr", "")
	v.SetDefault("consul.service_name", "mailbox-service")
	v.SetDefault("consul.service_host", "")
}

// Load reads the YAML file at path (if it exists) and lets environment
// variables override any key, e.g. MONGO_URI or JWT_HS_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return nil, err
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	c.ShutdownTimeout = time.Duration(c.App.ShutdownSecond) * time.Second
	c.PresenceTTL = time.Duration(c.Redis.PresenceTTLSecond) * time.Second
	c.LockTTL = time.Duration(c.Lock.TTLSecond) * time.Second
	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	c.BreakerTimeout = time.Duration(c.Push.BreakerSeconds) * time.Second

	if err := validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func validate(c *Config) error {
	if c.App.Port == 0 {
		return errors.New("app.port missing or invalid")
	}
	if c.Mongo.URI == "" || c.Mongo.Database == "" {
		return errors.New("mongo.uri and mongo.database required")
	}
	switch strings.ToUpper(c.JWT.Alg) {
	case "RS256":
		if c.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path required for RS256")
		}
	case "HS256":
		if c.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret required for HS256")
		}
	default:
		return errors.New("invalid jwt.alg (use RS256 or HS256)")
	}
	switch c.Push.Provider {
	case "log":
	case "fcm":
		if c.Push.CredentialsFile == "" {
			return errors.New("push.credentials_file required for fcm")
		}
	default:
		return fmt.Errorf("invalid push.provider %q", c.Push.Provider)
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			return errors.New("storage.local_dir required")
		}
	case "s3":
		if c.Storage.Bucket == "" || c.Storage.Region == "" {
			return errors.New("storage.bucket and storage.region required for s3")
		}
	default:
		return fmt.Errorf("invalid storage.backend %q", c.Storage.Backend)
	}
	switch c.Lock.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid lock.backend %q", c.Lock.Backend)
	}
	return nil
}
