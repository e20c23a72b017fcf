package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} references in credential fields.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so API keys can be stored as ${ENV_VAR} in the file.
func expandSensitiveFields(cfg *Config) {
	cfg.Model.APIKey = expandEnvVars(cfg.Model.APIKey)
	cfg.Session.Redis.Password = expandEnvVars(cfg.Session.Redis.Password)
	cfg.Upstream.Transit.APIKey = expandEnvVars(cfg.Upstream.Transit.APIKey)
}

// applyEnvOverrides lets bare environment variables supply credentials when
// the config file omits them.
func applyEnvOverrides(cfg *Config) {
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv("MISTRAL_API_KEY")
	}
	if cfg.Upstream.Transit.APIKey == "" {
		cfg.Upstream.Transit.APIKey = os.Getenv("STM_API_KEY")
	}
}

// Load reads the config file, fills defaults, expands credentials, and
// validates. A missing file yields defaults plus environment credentials.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, Validate(&cfg)
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	expandSensitiveFields(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, Validate(&cfg)
}

// Validate checks the config against its struct tags plus cross-field rules.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Session.Store == "redis" && cfg.Session.Redis.Addr == "" {
		return fmt.Errorf("invalid config: session.redis.addr is required when session.store is redis")
	}
	return nil
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills zero-value fields. Upstream defaults match a local
// docker-compose deployment (Photon and OTP on localhost) with the hosted
// Open-Meteo and STM endpoints.
func applyDefaults(cfg *Config) {
	if cfg.Server.Bind == "" {
		cfg.Server.Bind = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}

	if cfg.Model.Model == "" {
		cfg.Model.Model = "mistral-small-latest"
	}
	if cfg.Model.BaseURL == "" {
		cfg.Model.BaseURL = "https://api.mistral.ai"
	}
	if cfg.Model.TimeoutSeconds == 0 {
		cfg.Model.TimeoutSeconds = 60
	}

	if cfg.Chat.MaxToolRounds == 0 {
		cfg.Chat.MaxToolRounds = 10
	}

	if cfg.Session.Store == "" {
		cfg.Session.Store = "memory"
	}
	if cfg.Session.Redis.TTLHours == 0 {
		cfg.Session.Redis.TTLHours = 24
	}

	if cfg.Upstream.Geocoder.BaseURL == "" {
		cfg.Upstream.Geocoder.BaseURL = "http://localhost:2322"
	}
	if cfg.Upstream.Geocoder.TimeoutSeconds == 0 {
		cfg.Upstream.Geocoder.TimeoutSeconds = 10
	}
	if cfg.Upstream.Planner.URL == "" {
		cfg.Upstream.Planner.URL = "http://localhost:8080/otp/routers/default/index/graphql"
	}
	if cfg.Upstream.Planner.TimeoutSeconds == 0 {
		cfg.Upstream.Planner.TimeoutSeconds = 30
	}
	if cfg.Upstream.Weather.BaseURL == "" {
		cfg.Upstream.Weather.BaseURL = "https://api.open-meteo.com"
	}
	if cfg.Upstream.Weather.TimeoutSeconds == 0 {
		cfg.Upstream.Weather.TimeoutSeconds = 10
	}
	if cfg.Upstream.Transit.TripUpdatesURL == "" {
		cfg.Upstream.Transit.TripUpdatesURL = "https://api.stm.info/pub/od/gtfs-rt/ic/v2/tripUpdates"
	}
	if cfg.Upstream.Transit.TimeoutSeconds == 0 {
		cfg.Upstream.Transit.TimeoutSeconds = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Style == "" {
		cfg.Logging.Style = "pretty"
	}
}
