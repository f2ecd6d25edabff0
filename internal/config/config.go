package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv   string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	HTTPPort string `mapstructure:"HTTP_PORT"`
	GRPCPort string `mapstructure:"GRPC_PORT"`

	MySQLHost         string `mapstructure:"MYSQL_HOST"`
	MySQLPort         string `mapstructure:"MYSQL_PORT"`
	MySQLUser         string `mapstructure:"MYSQL_USER"`
	MySQLPassword     string `mapstructure:"MYSQL_PASSWORD"`
	MySQLDB           string `mapstructure:"MYSQL_DB"`
	MySQLMaxOpenConns int    `mapstructure:"MYSQL_MAX_OPEN_CONNS"`

	RedisAddr string `mapstructure:"REDIS_ADDR"`

	JWTSecret   string   `mapstructure:"JWT_SECRET"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	KafkaBrokers     []string `mapstructure:"KAFKA_BROKERS"`
	OrderEventsTopic string   `mapstructure:"ORDER_EVENTS_TOPIC"`
	EventWorkers     int      `mapstructure:"EVENT_WORKERS"`
	EventQueueSize   int      `mapstructure:"EVENT_QUEUE_SIZE"`

	S3Bucket string `mapstructure:"S3_BUCKET"`

	SMTPAddr          string `mapstructure:"SMTP_ADDR"`
	SMTPHost          string `mapstructure:"SMTP_HOST"`
	FromEmail         string `mapstructure:"FROM_EMAIL"`
	FromEmailPassword string `mapstructure:"FROM_EMAIL_PASSWORD"`

	OTPTTL          time.Duration `mapstructure:"OTP_TTL"`
	OTPCooldown     time.Duration `mapstructure:"OTP_COOLDOWN"`
	CheckoutTimeout time.Duration `mapstructure:"CHECKOUT_TIMEOUT"`
}

var defaults = map[string]any{
	"APP_ENV":              "dev",
	"LOG_LEVEL":            "info",
	"HTTP_PORT":            "8080",
	"GRPC_PORT":            "50051",
	"MYSQL_HOST":           "localhost",
	"MYSQL_PORT":           "3306",
	"MYSQL_USER":           "root",
	"MYSQL_PASSWORD":       "root",
	"MYSQL_DB":             "shophub",
	"MYSQL_MAX_OPEN_CONNS": 50,
	"REDIS_ADDR":           "localhost:6379",
	"JWT_SECRET":           "",
	"CORS_ORIGINS":         "http://localhost:3000",
	"KAFKA_BROKERS":        "",
	"ORDER_EVENTS_TOPIC":   "order-events",
	"EVENT_WORKERS":        4,
	"EVENT_QUEUE_SIZE":     1000,
	"S3_BUCKET":            "",
	"SMTP_ADDR":            "",
	"SMTP_HOST":            "",
	"FROM_EMAIL":           "",
	"FROM_EMAIL_PASSWORD":  "",
	"OTP_TTL":              "10m",
	"OTP_COOLDOWN":         "30s",
	"CHECKOUT_TIMEOUT":     "10s",
}

// Load reads the environment, after loading a .env file from the working
// directory when one exists. Variables already set win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.EventWorkers < 1 {
		return errors.New("EVENT_WORKERS must be at least 1")
	}
	if c.EventQueueSize < 1 {
		return errors.New("EVENT_QUEUE_SIZE must be at least 1")
	}
	if c.OTPTTL <= 0 || c.OTPCooldown <= 0 || c.CheckoutTimeout <= 0 {
		return errors.New("OTP_TTL, OTP_COOLDOWN and CHECKOUT_TIMEOUT must be positive")
	}
	return nil
}

func (c Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// MySQLDSN builds the driver DSN; multiStatements is only wanted for
// migrations.
func (c Config) MySQLDSN(multiStatements bool) string {
	cfg := mysql.NewConfig()
	cfg.User = c.MySQLUser
	cfg.Passwd = c.MySQLPassword
	cfg.Net = "tcp"
	cfg.Addr = c.MySQLHost + ":" + c.MySQLPort
	cfg.DBName = c.MySQLDB
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = multiStatements
	return cfg.FormatDSN()
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
