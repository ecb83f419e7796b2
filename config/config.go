package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	Env      string `env:"APP_ENV,default=development"`
	Port     string `env:"PORT,default=5000"`
	BaseURL  string `env:"BASE_URL,default=http://localhost:5000"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	MongoURI      string `env:"MONGODB_URI,default=mongodb://localhost:27017/?replicaSet=rs0"`
	MongoDatabase string `env:"MONGODB_NAME,default=bookclub"`
	StoreDriver   string `env:"STORE_DRIVER,default=mongo"`

	JWTSecret  string        `env:"JWT_SECRET,required"`
	TokenTTL   time.Duration `env:"JWT_TTL,default=24h"`
	BcryptCost int           `env:"BCRYPT_COST,default=12"`

	RevocationStore string `env:"REVOCATION_STORE,default=mongo"`
	RedisAddr       string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB,default=0"`

	UploadsDir     string `env:"UPLOADS_DIR,default=uploads"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES,default=5242880"`

	CORSOrigins   []string `env:"CORS_ORIGINS,default=http://localhost:5173"`
	AuthRateLimit float64  `env:"AUTH_RATE_LIMIT,default=1"`
	AuthRateBurst int      `env:"AUTH_RATE_BURST,default=5"`

	RepairSchedule string `env:"REPAIR_SCHEDULE,default=@every 1h"`
	DefaultLocale  string `env:"DEFAULT_LOCALE,default=pt-BR"`
}

// Load reads .env when present and decodes the environment into Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) UploadsURL() string {
	return c.BaseURL + "/uploads"
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.RevocationStore {
	case StoreMongo, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("unknown REVOCATION_STORE %q", c.RevocationStore)
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	return nil
}
