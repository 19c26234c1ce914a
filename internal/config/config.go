package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	DatabaseURL          string
	RedisURL             string
	NATSURL              string
	PublicBaseURL        string
	OIDCIssuer           string
	OIDCAudience         string
	OIDCJWKSURL          string
	GitHubToken          string
	GraderWorkflowPath   string
	SnapshotTimeout      time.Duration
	GraderConfigCacheTTL time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADEHUB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GradeHub API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("oidc.issuer", "https://token.actions.githubusercontent.com")
	v.SetDefault("grader.workflow_path", ".github/workflows/grade.yml")
	v.SetDefault("snapshot.timeout", "30s")
	v.SetDefault("grader.config_cache_ttl", "5m")

	snapshotTimeout, err := time.ParseDuration(v.GetString("snapshot.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid snapshot timeout: %w", err)
	}

	cacheTTL, err := time.ParseDuration(v.GetString("grader.config_cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid grader config cache ttl: %w", err)
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		PublicBaseURL:        v.GetString("public.base_url"),
		OIDCIssuer:           v.GetString("oidc.issuer"),
		OIDCAudience:         v.GetString("oidc.audience"),
		OIDCJWKSURL:          v.GetString("oidc.jwks_url"),
		GitHubToken:          v.GetString("github.token"),
		GraderWorkflowPath:   v.GetString("grader.workflow_path"),
		SnapshotTimeout:      snapshotTimeout,
		GraderConfigCacheTTL: cacheTTL,
	}

	if cfg.OIDCAudience == "" {
		return Config{}, fmt.Errorf("oidc audience must be provided")
	}

	if cfg.PublicBaseURL == "" {
		return Config{}, fmt.Errorf("public base url must be provided")
	}

	return cfg, nil
}
