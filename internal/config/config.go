package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort uint16 `env:"REDIS_PORT" envDefault:"6379"   validate:"min=1000,max=65535"`

	PostgresHost     string `env:"POSTGRES_HOST"     envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT"     envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER"     envDefault:"aqoo_user"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"aqoo_password"`
	PostgresDb       string `env:"POSTGRES_DB"       envDefault:"aqoo_db"`

	HttpServerPort uint16   `env:"HTTP_SERVER_PORT" envDefault:"8085" validate:"min=1000,max=65535"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"  envDefault:"http://localhost:3000" envSeparator:"," validate:"min=1,dive,url"`

	// Delay between a dropped socket and the member actually being removed.
	DisconnectGrace time.Duration `env:"DISCONNECT_GRACE" envDefault:"10s" validate:"min=1s,max=60s"`
	StunDuration    time.Duration `env:"STUN_DURATION"    envDefault:"1s"  validate:"min=100ms,max=10s"`
	PatternSymbols  int           `env:"PATTERN_SYMBOLS"  envDefault:"4"   validate:"min=2,max=8"`

	InputRatePerSec float64 `env:"INPUT_RATE_PER_SEC" envDefault:"30" validate:"gt=0"`
	InputBurst      int     `env:"INPUT_BURST"        envDefault:"60" validate:"min=1"`
}

func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	err := godotenv.Load(".env")
	if err != nil {
		zap.L().Debug(".env file not found", zap.Error(err))
	}

	cfg := &Config{}
	if err = env.Parse(cfg); err != nil {
		zap.L().Error("config_load_failed", zap.Error(err))
		return nil, err
	}

	validate := validator.New()
	if err = validate.Struct(cfg); err != nil {
		zap.L().Error("config_validation_failed", zap.Error(err))
		return nil, err
	}
	return cfg, nil
}
