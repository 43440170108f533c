package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           string `yaml:"port"`
	JWTSecret      string `yaml:"jwt_secret"`
	AllowedOrigins string `yaml:"allowed_origins"`
	CSRFMode       string `yaml:"csrf_mode"`

	Database    DatabaseConfig   `yaml:"database"`
	Redis       RedisConfig      `yaml:"redis"`
	S3          S3Config         `yaml:"s3"`
	Chat        ChatConfig       `yaml:"chat"`
	Attachments AttachmentConfig `yaml:"attachments"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	Port       string `yaml:"port"`
	SSLMode    string `yaml:"sslmode"`
	SQLitePath string `yaml:"sqlite_path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Enabled reports whether every required S3 setting is present. Region can
// be empty for MinIO.
func (c S3Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type ChatConfig struct {
	TypingTTL          Duration `yaml:"typing_ttl"`
	TypingMinInterval  Duration `yaml:"typing_min_interval"`
	MaxMessageLength   int      `yaml:"max_message_length"`
	PageSize           int      `yaml:"page_size"`
	RecentUnreadWindow Duration `yaml:"recent_unread_window"`
}

type AttachmentConfig struct {
	MaxSize      SizeBytes `yaml:"max_size"`
	AllowedTypes []string  `yaml:"allowed_types"`
	SweepCron    string    `yaml:"sweep_cron"`
	SweepGrace   Duration  `yaml:"sweep_grace"`
}

// DefaultAllowedTypes covers the documents and images the business side
// exchanges (quotes, invoices, artwork proofs).
var DefaultAllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/gif",
	"application/pdf",
	"text/plain",
	"text/csv",
	"application/zip",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"audio/mpeg",
	"video/mp4",
}

func Default() Config {
	return Config{
		Port:     "8080",
		CSRFMode: "token",
		Database: DatabaseConfig{
			Driver:     "postgres",
			Port:       "5432",
			SSLMode:    "disable",
			SQLitePath: "chat.db",
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Chat: ChatConfig{
			TypingTTL:          Duration(5 * time.Second),
			TypingMinInterval:  Duration(time.Second),
			MaxMessageLength:   4000,
			PageSize:           50,
			RecentUnreadWindow: Duration(30 * time.Minute),
		},
		Attachments: AttachmentConfig{
			MaxSize:      SizeBytes(10 * 1000 * 1000),
			AllowedTypes: append([]string(nil), DefaultAllowedTypes...),
			SweepCron:    "*/30 * * * *",
			SweepGrace:   Duration(time.Hour),
		},
	}
}

// Load layers defaults, the optional YAML file and the environment, in that
// order. A missing .env file is not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := Default()
	if path == "" {
		path = strings.TrimSpace(os.Getenv("CHAT_CONFIG_FILE"))
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Chat.TypingTTL <= 0 {
		return errors.New("TYPING_TTL must be positive")
	}
	if c.Chat.PageSize <= 0 || c.Chat.PageSize > 100 {
		return errors.New("MESSAGE_PAGE_SIZE must be between 1 and 100")
	}
	if c.Attachments.MaxSize <= 0 {
		return errors.New("ATTACHMENT_MAX_SIZE must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.AllowedOrigins, "ALLOWED_ORIGINS")
	setString(&cfg.CSRFMode, "CSRF_MODE")

	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Database.Host, "DB_HOST")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Name, "DB_NAME")
	setString(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.SSLMode, "DB_SSLMODE")
	setString(&cfg.Database.SQLitePath, "SQLITE_PATH")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	if err := setInt(&cfg.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}

	setString(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setString(&cfg.S3.Region, "S3_REGION")
	setString(&cfg.S3.Bucket, "S3_BUCKET")
	setString(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	if v := strings.TrimSpace(os.Getenv("S3_USE_SSL")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid S3_USE_SSL: %w", err)
		}
		cfg.S3.UseSSL = b
	}

	if err := setDuration(&cfg.Chat.TypingTTL, "TYPING_TTL"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Chat.TypingMinInterval, "TYPING_MIN_INTERVAL"); err != nil {
		return err
	}
	if err := setInt(&cfg.Chat.MaxMessageLength, "MAX_MESSAGE_LENGTH"); err != nil {
		return err
	}
	if err := setInt(&cfg.Chat.PageSize, "MESSAGE_PAGE_SIZE"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Chat.RecentUnreadWindow, "RECENT_UNREAD_WINDOW"); err != nil {
		return err
	}

	if v := strings.TrimSpace(os.Getenv("ATTACHMENT_MAX_SIZE")); v != "" {
		n, err := ParseSize(v)
		if err != nil {
			return fmt.Errorf("invalid ATTACHMENT_MAX_SIZE: %w", err)
		}
		cfg.Attachments.MaxSize = n
	}
	if v := strings.TrimSpace(os.Getenv("ATTACHMENT_ALLOWED_TYPES")); v != "" {
		cfg.Attachments.AllowedTypes = SplitCSV(v)
	}
	setString(&cfg.Attachments.SweepCron, "ATTACHMENT_SWEEP_CRON")
	if err := setDuration(&cfg.Attachments.SweepGrace, "ATTACHMENT_SWEEP_GRACE"); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = Duration(d)
	return nil
}

// SplitCSV splits a comma separated list, dropping blanks.
func SplitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SizeBytes is a byte count that unmarshals from "10MB" style strings or
// plain integers.
type SizeBytes int64

func ParseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil || strings.TrimSpace(node.Value) == "" {
		*s = 0
		return nil
	}
	v, err := ParseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func (s SizeBytes) String() string { return humanize.Bytes(uint64(s)) }

// Duration unmarshals from "5s" style strings or plain seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if v, err := time.ParseDuration(raw); err == nil {
		*d = Duration(v)
		return nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", raw)
}

func (d Duration) Std() time.Duration { return time.Duration(d) }
