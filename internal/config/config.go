package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DevSecret signs tokens in development when no secret is configured.
const DevSecret = "pneumax-development-secret"

type Config struct {
	Env string `yaml:"env"`

	Server struct {
		Port           int      `yaml:"port"`
		MaxUploadMB    int      `yaml:"maxUploadMB"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		RateLimit      struct {
			Capacity   int `yaml:"capacity"`
			RefillRate int `yaml:"refillRate"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	Auth struct {
		JWTSecret       string `yaml:"jwtSecret"`
		ExpirationHours int    `yaml:"expirationHours"`
	} `yaml:"auth"`

	Database struct {
		// Driver is one of mongo, mysql, postgres, memory.
		Driver   string `yaml:"driver"`
		URI      string `yaml:"uri"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
		Migrate  bool   `yaml:"migrate"`
		TimeoutS int    `yaml:"timeoutSeconds"`
	} `yaml:"database"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Classifier struct {
		// Backend is one of dummy, tfserving, openai.
		Backend      string `yaml:"backend"`
		ModelVersion string `yaml:"modelVersion"`
		TimeoutS     int    `yaml:"timeoutSeconds"`
		TFServing    struct {
			URL   string `yaml:"url"`
			Model string `yaml:"model"`
		} `yaml:"tfserving"`
		OpenAI struct {
			APIKey  string `yaml:"apiKey"`
			BaseURL string `yaml:"baseURL"`
			Model   string `yaml:"model"`
		} `yaml:"openai"`
	} `yaml:"classifier"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads the YAML file at path (optional), then .env, then environment
// overrides, and fills defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	// .env never overrides variables already set in the process environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}
	flag := func(key string, dst *bool) error {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
		return nil
	}

	str("APP_ENV", &c.Env)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("DB_DRIVER", &c.Database.Driver)
	str("MONGODB_URI", &c.Database.URI)
	str("MONGODB_DB", &c.Database.Name)
	str("MINIO_ENDPOINT", &c.Minio.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &c.Minio.SecretKey)
	str("MINIO_BUCKET", &c.Minio.BucketName)
	str("MINIO_REGION", &c.Minio.Region)
	str("CLASSIFIER_BACKEND", &c.Classifier.Backend)
	str("TFSERVING_URL", &c.Classifier.TFServing.URL)
	str("OPENAI_API_KEY", &c.Classifier.OpenAI.APIKey)
	str("LOG_LEVEL", &c.Log.Level)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	for _, err := range []error{
		num("PORT", &c.Server.Port),
		num("JWT_EXPIRATION_HOURS", &c.Auth.ExpirationHours),
		flag("MINIO_ENABLED", &c.Minio.Enabled),
		flag("MINIO_USE_SSL", &c.Minio.UseSSL),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "production"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 10
	}
	if c.Auth.ExpirationHours == 0 {
		c.Auth.ExpirationHours = 24
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mongo"
	}
	if c.Database.Driver == "mongo" {
		if c.Database.URI == "" {
			c.Database.URI = "mongodb://localhost:27017"
		}
		if c.Database.Name == "" {
			c.Database.Name = "pneumax"
		}
	}
	if c.Database.TimeoutS == 0 {
		c.Database.TimeoutS = 5
	}
	if c.Classifier.Backend == "" {
		c.Classifier.Backend = "dummy"
	}
	if c.Classifier.TimeoutS == 0 {
		c.Classifier.TimeoutS = 30
	}
	if c.Classifier.TFServing.Model == "" {
		c.Classifier.TFServing.Model = "lung_disease"
	}
	if c.Classifier.ModelVersion == "" {
		c.Classifier.ModelVersion = "2.0-multiclass"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Development reports whether insecure defaults are allowed.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Env, "development")
}

// Validate fails closed: outside development a signing secret is required.
// In development an empty secret is replaced with DevSecret and reported
// through insecure so the caller can warn.
func (c *Config) Validate() (insecure bool, err error) {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		if !c.Development() {
			return false, errors.New("JWT_SECRET must be set outside development")
		}
		c.Auth.JWTSecret = DevSecret
		insecure = true
	}
	if c.Auth.ExpirationHours < 0 {
		return insecure, errors.New("auth.expirationHours must not be negative")
	}
	switch c.Database.Driver {
	case "mongo", "mysql", "postgres", "memory":
	default:
		return insecure, fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Classifier.Backend {
	case "dummy":
	case "tfserving":
		if c.Classifier.TFServing.URL == "" {
			return insecure, errors.New("TFSERVING_URL is required for the tfserving backend")
		}
	case "openai":
		if c.Classifier.OpenAI.APIKey == "" {
			return insecure, errors.New("OPENAI_API_KEY is required for the openai backend")
		}
	default:
		return insecure, fmt.Errorf("unknown classifier backend %q", c.Classifier.Backend)
	}
	if c.Minio.Enabled && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		return insecure, errors.New("minio endpoint and bucket are required when minio is enabled")
	}
	return insecure, nil
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.ExpirationHours) * time.Hour
}

func (c *Config) DatabaseTimeout() time.Duration {
	return time.Duration(c.Database.TimeoutS) * time.Second
}

func (c *Config) ClassifierTimeout() time.Duration {
	return time.Duration(c.Classifier.TimeoutS) * time.Second
}

// MySQLDSN builds the go-sql-driver DSN.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq URL DSN.
func (c *Config) PostgresDSN() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
	}
	return u.String()
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
