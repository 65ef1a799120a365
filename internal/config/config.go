package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type App struct {
	Env             string        `mapstructure:"env"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
}

func (a *App) PortString() string { return fmt.Sprintf("%d", a.Port) }

func (a *App) Development() bool { return a.Env == "" || a.Env == "development" || a.Env == "dev" }

type Store struct {
	Driver string `mapstructure:"driver"`
}

type Mongo struct {
	URI            string        `mapstructure:"uri"`
	DB             string        `mapstructure:"db"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Breaker struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type Kafka struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
	Breaker Breaker  `mapstructure:"breaker"`
}

type Events struct {
	Driver string `mapstructure:"driver"`
	Buffer int    `mapstructure:"buffer"`
}

type Scheduler struct {
	Driver       string        `mapstructure:"driver"`
	Key          string        `mapstructure:"key"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type JWT struct {
	Alg           string `mapstructure:"alg"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	HSSecret      string `mapstructure:"hs_secret"`
}

type Chat struct {
	TypingTTL          time.Duration `mapstructure:"typing_ttl"`
	TypingMaxTTL       time.Duration `mapstructure:"typing_max_ttl"`
	TypingCleanupGrace time.Duration `mapstructure:"typing_cleanup_grace"`
	OnlineWindow       time.Duration `mapstructure:"online_window"`
	SearchLimit        int           `mapstructure:"search_limit"`
	BrowseLimit        int           `mapstructure:"browse_limit"`
}

type Rate struct {
	Driver          string `mapstructure:"driver"`
	TypingPerMin    int    `mapstructure:"typing_per_min"`
	HeartbeatPerMin int    `mapstructure:"heartbeat_per_min"`
}

type CORS struct {
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

type Config struct {
	App       App       `mapstructure:"app"`
	Store     Store     `mapstructure:"store"`
	Mongo     Mongo     `mapstructure:"mongo"`
	Redis     Redis     `mapstructure:"redis"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Events    Events    `mapstructure:"events"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	JWT       JWT       `mapstructure:"jwt"`
	Chat      Chat      `mapstructure:"chat"`
	Rate      Rate      `mapstructure:"rate"`
	CORS      CORS      `mapstructure:"cors"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.shutdown_timeout", 10*time.Second)
	v.SetDefault("app.log_level", "")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.db", "conversations")
	v.SetDefault("mongo.connect_timeout", 30*time.Second)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "conversation.events")
	v.SetDefault("kafka.group_id", "")
	v.SetDefault("kafka.breaker.max_failures", 5)
	v.SetDefault("kafka.breaker.interval", time.Minute)
	v.SetDefault("kafka.breaker.timeout", 30*time.Second)
	v.SetDefault("events.driver", "local")
	v.SetDefault("events.buffer", 1024)
	v.SetDefault("scheduler.driver", "local")
	v.SetDefault("scheduler.key", "conversation:jobs")
	v.SetDefault("scheduler.poll_interval", 100*time.Millisecond)
	v.SetDefault("jwt.alg", "RS256")
	v.SetDefault("jwt.public_key_path", "")
	v.SetDefault("jwt.hs_secret", "")
	v.SetDefault("chat.typing_ttl", 2500*time.Millisecond)
	v.SetDefault("chat.typing_max_ttl", 3*time.Second)
	v.SetDefault("chat.typing_cleanup_grace", 50*time.Millisecond)
	v.SetDefault("chat.online_window", 30*time.Second)
	v.SetDefault("chat.search_limit", 30)
	v.SetDefault("chat.browse_limit", 50)
	v.SetDefault("rate.driver", "local")
	v.SetDefault("rate.typing_per_min", 120)
	v.SetDefault("rate.heartbeat_per_min", 12)
	v.SetDefault("cors.allowed_origins", "*")
}

// Load reads path when it exists, then .env and the environment. Nested
// keys map to upper-case env names with "." replaced by "_" (MONGO_URI,
// CHAT_TYPING_TTL).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// names used by the other services
	_ = v.BindEnv("app.port", "APP_PORT", "SERVICE_PORT")
	_ = v.BindEnv("mongo.uri", "MONGO_URI", "MONGODB_URI")
	_ = v.BindEnv("kafka.brokers", "KAFKA_BROKERS", "KAFKA_BROKER")
	_ = v.BindEnv("jwt.hs_secret", "JWT_HS_SECRET", "JWT_SECRET")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Kafka.GroupID == "" {
		host, _ := os.Hostname()
		cfg.Kafka.GroupID = "conversation-service-" + host
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.App.Port <= 0 {
		return errors.New("app.port missing or invalid")
	}

	switch cfg.Store.Driver {
	case "mongo":
		if cfg.Mongo.URI == "" {
			return errors.New("mongo.uri missing")
		}
		if cfg.Mongo.DB == "" {
			return errors.New("mongo.db missing")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store.driver %q (use mongo or memory)", cfg.Store.Driver)
	}

	switch cfg.Events.Driver {
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers missing")
		}
		if cfg.Kafka.Topic == "" {
			return errors.New("kafka.topic missing")
		}
	case "local":
	default:
		return fmt.Errorf("invalid events.driver %q (use kafka or local)", cfg.Events.Driver)
	}

	switch cfg.Scheduler.Driver {
	case "redis", "local":
	default:
		return fmt.Errorf("invalid scheduler.driver %q (use redis or local)", cfg.Scheduler.Driver)
	}
	switch cfg.Rate.Driver {
	case "redis", "local":
	default:
		return fmt.Errorf("invalid rate.driver %q (use redis or local)", cfg.Rate.Driver)
	}
	if (cfg.Scheduler.Driver == "redis" || cfg.Rate.Driver == "redis") && cfg.Redis.Addr == "" {
		return errors.New("redis.addr missing")
	}

	switch strings.ToUpper(cfg.JWT.Alg) {
	case "RS256":
		if cfg.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path required for RS256")
		}
	case "HS256":
		if cfg.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret required for HS256")
		}
	default:
		return errors.New("invalid jwt.alg (use RS256 or HS256)")
	}

	if cfg.Chat.TypingTTL <= 0 || cfg.Chat.TypingCleanupGrace < 0 || cfg.Chat.OnlineWindow <= 0 {
		return errors.New("chat timings must be positive")
	}
	if cfg.Chat.TypingMaxTTL < cfg.Chat.TypingTTL {
		return errors.New("chat.typing_max_ttl must be at least chat.typing_ttl")
	}
	if cfg.Rate.TypingPerMin <= 0 || cfg.Rate.HeartbeatPerMin <= 0 {
		return errors.New("rate limits must be positive")
	}
	return nil
}
