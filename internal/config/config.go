package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Supported values for the selector fields.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"

	BackendS3         = "s3"
	BackendFilesystem = "filesystem"
	BackendInline     = "inline"

	// URLPublicBase serves objects from a public bucket domain: <public_base_url>/<key>.
	URLPublicBase = "public_base"
	// URLEndpoint builds path-style URLs on the S3 endpoint: <endpoint>/<bucket>/<key>.
	URLEndpoint = "endpoint"
	// URLAPI points at this service's download route.
	URLAPI = "api"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	S3       S3Config       `mapstructure:"s3"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Security SecurityConfig `mapstructure:"security"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Address     string   `mapstructure:"address"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`  // postgres
	URI    string `mapstructure:"uri"`  // mongo
	Name   string `mapstructure:"name"` // mongo database name
}

// StorageConfig selects where attachment bytes live and how their public URL is built.
type StorageConfig struct {
	Backend       string        `mapstructure:"backend"`
	Root          string        `mapstructure:"root"` // filesystem backend
	KeyPrefix     string        `mapstructure:"key_prefix"`
	Timeout       time.Duration `mapstructure:"timeout"`
	URLStrategy   string        `mapstructure:"url_strategy"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type UploadConfig struct {
	MaxBytes     int64    `mapstructure:"max_bytes"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// SecurityConfig carries the server-wide secret the credential key is derived from.
type SecurityConfig struct {
	SecretKey string `mapstructure:"secret_key"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
	MaxSize     int    `mapstructure:"max_size"` // MB
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"` // days
	Compress    bool   `mapstructure:"compress"`
}

// DefaultAllowedTypes is the upload allow-list used when none is configured.
var DefaultAllowedTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"image/jpeg",
	"image/png",
	"text/plain",
}

// LoadConfig reads configuration from file or environment variables.
// A .env file next to the config file is loaded first if present; it never
// overrides variables already set in the environment.
func LoadConfig(path string) (Config, error) {
	_ = godotenv.Load(filepath.Join(path, ".env"))

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Nested keys map to env vars: storage.public_base_url -> STORAGE_PUBLIC_BASE_URL
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Every key needs a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.dsn", "host=localhost user=postgres dbname=emstore sslmode=disable")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "emstore")

	v.SetDefault("storage.backend", BackendFilesystem)
	v.SetDefault("storage.root", "./data/attachments")
	v.SetDefault("storage.key_prefix", "")
	v.SetDefault("storage.timeout", "30s")
	v.SetDefault("storage.url_strategy", URLAPI)
	v.SetDefault("storage.public_base_url", "http://localhost:8080")

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "auto")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.bucket_name", "")
	v.SetDefault("s3.use_ssl", true)

	v.SetDefault("upload.max_bytes", 10*1024*1024)
	v.SetDefault("upload.allowed_types", DefaultAllowedTypes)

	v.SetDefault("security.secret_key", "")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", "1h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)
}

func (c *Config) normalize() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Storage.URLStrategy = strings.ToLower(strings.TrimSpace(c.Storage.URLStrategy))
	c.Storage.PublicBaseURL = strings.TrimRight(c.Storage.PublicBaseURL, "/")
	c.Storage.KeyPrefix = strings.Trim(c.Storage.KeyPrefix, "/")
	c.S3.Endpoint = strings.TrimRight(c.S3.Endpoint, "/")

	types := make([]string, 0, len(c.Upload.AllowedTypes))
	for _, t := range c.Upload.AllowedTypes {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			types = append(types, t)
		}
	}
	c.Upload.AllowedTypes = types
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Security.SecretKey) < 16 {
		errs = append(errs, errors.New("security.secret_key must be at least 16 characters"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for the postgres driver"))
		}
	case DriverMongo:
		if c.Database.URI == "" || c.Database.Name == "" {
			errs = append(errs, errors.New("database.uri and database.name are required for the mongo driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}

	switch c.Storage.Backend {
	case BackendS3:
		if c.S3.BucketName == "" {
			errs = append(errs, errors.New("s3.bucket_name is required for the s3 backend"))
		}
	case BackendFilesystem:
		if c.Storage.Root == "" {
			errs = append(errs, errors.New("storage.root is required for the filesystem backend"))
		}
	case BackendInline:
		if c.Storage.URLStrategy != URLAPI {
			errs = append(errs, errors.New("the inline backend only supports storage.url_strategy=api"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	switch c.Storage.URLStrategy {
	case URLPublicBase, URLAPI:
		if c.Storage.PublicBaseURL == "" {
			errs = append(errs, fmt.Errorf("storage.public_base_url is required for url_strategy=%s", c.Storage.URLStrategy))
		}
	case URLEndpoint:
		if c.Storage.Backend != BackendS3 || c.S3.Endpoint == "" {
			errs = append(errs, errors.New("url_strategy=endpoint requires the s3 backend and s3.endpoint"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.url_strategy %q", c.Storage.URLStrategy))
	}

	if c.Storage.Timeout <= 0 {
		errs = append(errs, errors.New("storage.timeout must be positive"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}
	if len(c.Upload.AllowedTypes) == 0 {
		errs = append(errs, errors.New("upload.allowed_types must not be empty"))
	}

	return errors.Join(errs...)
}
