package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir into an empty directory so a developer's .env cannot leak in.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, k := range []string{"APP_ENV", "JWT_SECRET", "DB_DRIVER", "PORT", "CLASSIFIER_BACKEND", "TFSERVING_URL", "JWT_EXPIRATION_HOURS", "CORS_ORIGINS", "MONGODB_URI", "MONGODB_DB", "MINIO_ENABLED", "OPENAI_API_KEY", "LOG_LEVEL"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("missing.yaml")
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "mongo", cfg.Database.Driver)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Database.URI)
	assert.Equal(t, "dummy", cfg.Classifier.Backend)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: staging
server:
  port: 8080
  allowedOrigins: ["http://a.example"]
database:
  driver: mysql
  host: db
  port: 3306
  user: app
  password: s3cret
  name: pneumax
`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=from-dotenv\nPORT=9000\n"), 0o600))
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGINS", "http://b.example, http://c.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, 9090, cfg.Server.Port, "process env wins over .env")
	assert.Equal(t, "from-dotenv", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"http://b.example", "http://c.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "app:s3cret@tcp(db:3306)/pneumax?parseTime=true&charset=utf8mb4&loc=UTC", cfg.MySQLDSN())
	assert.Equal(t, "postgres://app:s3cret@db:3306/pneumax?sslmode=disable", cfg.PostgresDSN())
}

func TestLoad_BadValues(t *testing.T) {
	dir := isolate(t)

	t.Setenv("PORT", "eighty")
	_, err := Load("missing.yaml")
	assert.Error(t, err)

	require.NoError(t, os.Unsetenv("PORT"))
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate_Secret(t *testing.T) {
	var prod Config
	prod.applyDefaults()
	_, err := prod.Validate()
	assert.Error(t, err, "production without secret must fail")

	var dev Config
	dev.Env = "development"
	dev.applyDefaults()
	insecure, err := dev.Validate()
	require.NoError(t, err)
	assert.True(t, insecure)
	assert.Equal(t, DevSecret, dev.Auth.JWTSecret)

	var ok Config
	ok.Auth.JWTSecret = "real"
	ok.applyDefaults()
	insecure, err = ok.Validate()
	require.NoError(t, err)
	assert.False(t, insecure)
}

func TestValidate_Backends(t *testing.T) {
	base := func() Config {
		var c Config
		c.Auth.JWTSecret = "s"
		c.applyDefaults()
		return c
	}

	c := base()
	c.Database.Driver = "sqlite"
	_, err := c.Validate()
	assert.Error(t, err)

	c = base()
	c.Classifier.Backend = "tfserving"
	_, err = c.Validate()
	assert.Error(t, err)
	c.Classifier.TFServing.URL = "http://tf:8501"
	_, err = c.Validate()
	assert.NoError(t, err)

	c = base()
	c.Classifier.Backend = "openai"
	_, err = c.Validate()
	assert.Error(t, err)

	c = base()
	c.Minio.Enabled = true
	_, err = c.Validate()
	assert.Error(t, err)
}
