// Package config loads server settings from defaults, an optional YAML
// file, .env files and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Secrets shipped as defaults. Validate refuses them in production.
const (
	DefaultJWTSecret     = "default-jwt-secret-key-change-in-production"
	DefaultRefreshSecret = "default-refresh-secret-key-change-in-production"
)

// Storage drivers understood by the CLI.
var StorageDrivers = []string{"memory", "fs", "sqlite", "postgres", "mongo", "datastore"}

type OAuthProvider struct {
	ClientID     string `yaml:"client_id" env:"CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"CLIENT_SECRET"`
	CallbackURL  string `yaml:"callback_url" env:"CALLBACK_URL"`
}

type Config struct {
	// development | production | test
	Env       string `yaml:"env" env:"APP_ENV"`
	Port      int    `yaml:"port" env:"PORT"`
	APIPrefix string `yaml:"api_prefix" env:"API_PREFIX"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`

	ShutdownTimeout Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	JWT struct {
		Secret           string   `yaml:"secret" env:"JWT_SECRET"`
		ExpiresIn        Duration `yaml:"expires_in" env:"JWT_EXPIRES_IN"`
		RefreshSecret    string   `yaml:"refresh_secret" env:"REFRESH_SECRET"`
		RefreshExpiresIn Duration `yaml:"refresh_expires_in" env:"REFRESH_EXPIRES_IN"`
		Issuer           string   `yaml:"issuer" env:"JWT_ISSUER"`
	} `yaml:"jwt"`

	Auth struct {
		BcryptCost         int    `yaml:"bcrypt_cost" env:"BCRYPT_COST"`
		MinPasswordLength  int    `yaml:"min_password_length" env:"MIN_PASSWORD_LENGTH"`
		CookieDomain       string `yaml:"cookie_domain" env:"COOKIE_DOMAIN"`
		ResetURL           string `yaml:"reset_url" env:"RESET_URL"`
		SuccessRedirectURL string `yaml:"success_redirect_url" env:"OAUTH_SUCCESS_REDIRECT"`
	} `yaml:"auth"`

	OAuth struct {
		EnableGitHub   bool          `yaml:"enable_github" env:"ENABLE_GITHUB"`
		EnableGoogle   bool          `yaml:"enable_google" env:"ENABLE_GOOGLE"`
		EnableFacebook bool          `yaml:"enable_facebook" env:"ENABLE_FACEBOOK"`
		GitHub         OAuthProvider `yaml:"github" envPrefix:"GITHUB_"`
		Google         OAuthProvider `yaml:"google" envPrefix:"GOOGLE_"`
		Facebook       OAuthProvider `yaml:"facebook" envPrefix:"FACEBOOK_"`
	} `yaml:"oauth"`

	Email struct {
		Host    string `yaml:"host" env:"EMAIL_HOST"`
		Port    int    `yaml:"port" env:"EMAIL_PORT"`
		Secure  bool   `yaml:"secure" env:"EMAIL_SECURE"`
		TLSMode string `yaml:"tls_mode" env:"EMAIL_TLS_MODE"`
		User    string `yaml:"user" env:"EMAIL_USER"`
		Pass    string `yaml:"pass" env:"EMAIL_PASS"`
		From    string `yaml:"from" env:"EMAIL_FROM"`
	} `yaml:"email"`

	Storage struct {
		Driver        string `yaml:"driver" env:"STORAGE_DRIVER"`
		DSN           string `yaml:"dsn" env:"DATABASE_DSN"`
		Path          string `yaml:"path" env:"STORAGE_PATH"`
		MongoURI      string `yaml:"mongo_uri" env:"MONGO_URI"`
		MongoDatabase string `yaml:"mongo_database" env:"MONGO_DATABASE"`
		ProjectID     string `yaml:"project_id" env:"DATASTORE_PROJECT_ID"`
		Namespace     string `yaml:"namespace" env:"DATASTORE_NAMESPACE"`
	} `yaml:"storage"`

	RateLimit struct {
		Enabled   bool     `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
		Max       int      `yaml:"max" env:"RATE_LIMIT_MAX"`
		Window    Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
		RedisAddr string   `yaml:"redis_addr" env:"REDIS_ADDR"`
	} `yaml:"rate_limit"`

	// TrustedProxies lists the reverse proxies (CIDRs or addresses) whose
	// X-Forwarded-For and X-Real-IP headers are believed. Empty means the
	// connection address is the client.
	TrustedProxies []string `yaml:"trusted_proxies" env:"TRUST_PROXY" envSeparator:","`
}

// Default returns the built-in settings.
func Default() *Config {
	c := &Config{
		Env:             "development",
		Port:            3000,
		APIPrefix:       "/api/v1",
		LogLevel:        "info",
		ShutdownTimeout: Duration(10 * time.Second),
	}
	c.JWT.Secret = DefaultJWTSecret
	c.JWT.ExpiresIn = Duration(time.Hour)
	c.JWT.RefreshSecret = DefaultRefreshSecret
	c.JWT.RefreshExpiresIn = Duration(7 * 24 * time.Hour)
	c.Auth.BcryptCost = 10
	c.Auth.MinPasswordLength = 8
	c.OAuth.GitHub.CallbackURL = "http://localhost:3000/api/v1/auth/github/callback"
	c.OAuth.Google.CallbackURL = "http://localhost:3000/api/v1/auth/google/callback"
	c.OAuth.Facebook.CallbackURL = "http://localhost:3000/api/v1/auth/facebook/callback"
	c.Email.Port = 587
	c.Email.From = "noreply@example.com"
	c.Storage.Driver = "memory"
	c.Storage.Path = "./data"
	c.Storage.MongoURI = "mongodb://localhost:27017"
	c.Storage.MongoDatabase = "authkit"
	c.RateLimit.Enabled = true
	c.RateLimit.Max = 100
	c.RateLimit.Window = Duration(15 * time.Minute)
	return c
}

// Load layers yamlPath (skipped when empty), then the dotenv files (missing
// ones are ignored), then the process environment over Default, and
// validates the result.
func Load(yamlPath string, dotenvFiles ...string) (*Config, error) {
	c := Default()
	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", yamlPath, err)
		}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) IsProduction() bool {
	e := strings.ToLower(c.Env)
	return e == "production" || e == "prod"
}

// Addr is the listen address for Port.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.APIPrefix != "" && !strings.HasPrefix(c.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("api_prefix must start with /"))
	}
	if c.JWT.Secret == "" || c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("jwt secrets must not be empty"))
	}
	if c.JWT.ExpiresIn <= 0 || c.JWT.RefreshExpiresIn <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.IsProduction() {
		if c.JWT.Secret == DefaultJWTSecret || c.JWT.RefreshSecret == DefaultRefreshSecret {
			errs = append(errs, errors.New("default jwt secrets are not allowed in production"))
		}
	}
	if !slices.Contains(StorageDrivers, c.Storage.Driver) {
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	if (c.Storage.Driver == "sqlite" || c.Storage.Driver == "postgres") && c.Storage.DSN == "" {
		errs = append(errs, fmt.Errorf("%s storage needs DATABASE_DSN", c.Storage.Driver))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("rate limit max and window must be positive"))
	}
	for name, p := range map[string]struct {
		on bool
		p  OAuthProvider
	}{
		"github":   {c.OAuth.EnableGitHub, c.OAuth.GitHub},
		"google":   {c.OAuth.EnableGoogle, c.OAuth.Google},
		"facebook": {c.OAuth.EnableFacebook, c.OAuth.Facebook},
	} {
		if p.on && (p.p.ClientID == "" || p.p.ClientSecret == "") {
			errs = append(errs, fmt.Errorf("%s oauth enabled without client credentials", name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
