// Package config loads and validates the application configuration.
// Configuration is read once at startup and treated as immutable afterwards.
package config

// Config is the root configuration for Voyago.
type Config struct {
	Server   ServerConfig   `yaml:"server,omitempty" validate:"required"`
	Model    ModelConfig    `yaml:"model,omitempty"`
	Chat     ChatConfig     `yaml:"chat,omitempty"`
	Session  SessionConfig  `yaml:"session,omitempty"`
	Upstream UpstreamConfig `yaml:"upstream,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Bind           string   `yaml:"bind,omitempty" validate:"omitempty,ip|hostname"`
	Port           int      `yaml:"port,omitempty" validate:"gte=0,lte=65535"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty" validate:"dive,url"`
}

// ModelConfig configures the language-model upstream (Mistral chat completions).
type ModelConfig struct {
	APIKey         string   `yaml:"apiKey,omitempty"`
	Model          string   `yaml:"model,omitempty"`
	BaseURL        string   `yaml:"baseUrl,omitempty" validate:"omitempty,url"`
	TimeoutSeconds int      `yaml:"timeoutSeconds,omitempty" validate:"gte=0"`
	MaxTokens      int      `yaml:"maxTokens,omitempty" validate:"gte=0"`
	Temperature    *float64 `yaml:"temperature,omitempty"`
}

// ChatConfig controls the conversation orchestrator.
type ChatConfig struct {
	// MaxToolRounds caps how many model→tools→model rounds a single turn may
	// take before the turn is aborted with a degraded answer. Minimum 5.
	MaxToolRounds int `yaml:"maxToolRounds,omitempty" validate:"gte=0"`

	// ReplayToolHistory controls whether prior turns' tool-call and
	// tool-result messages are replayed to the model. Full replay avoids
	// re-fabrication of previously resolved coordinates at higher token cost.
	ReplayToolHistory *bool `yaml:"replayToolHistory,omitempty"`
}

// SessionConfig selects the conversation storage backend.
type SessionConfig struct {
	Store      string      `yaml:"store,omitempty" validate:"omitempty,oneof=memory sqlite redis"`
	SQLitePath string      `yaml:"sqlitePath,omitempty"`
	Redis      RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig configures the Redis session backend.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty" validate:"gte=0"`
	TTLHours int    `yaml:"ttlHours,omitempty" validate:"gte=0"`
}

// UpstreamConfig holds base URLs, credentials, and timeouts for the external
// services the tools call.
type UpstreamConfig struct {
	Geocoder GeocoderConfig `yaml:"geocoder,omitempty"`
	Planner  PlannerConfig  `yaml:"planner,omitempty"`
	Weather  WeatherConfig  `yaml:"weather,omitempty"`
	Transit  TransitConfig  `yaml:"transit,omitempty"`
}

// GeocoderConfig points at a Photon geocoding service.
type GeocoderConfig struct {
	BaseURL        string `yaml:"baseUrl,omitempty" validate:"omitempty,url"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty" validate:"gte=0"`
}

// PlannerConfig points at an OpenTripPlanner GraphQL endpoint.
type PlannerConfig struct {
	URL            string `yaml:"url,omitempty" validate:"omitempty,url"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty" validate:"gte=0"`
}

// WeatherConfig points at an Open-Meteo forecast endpoint.
type WeatherConfig struct {
	BaseURL        string `yaml:"baseUrl,omitempty" validate:"omitempty,url"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty" validate:"gte=0"`
}

// TransitConfig points at the STM GTFS-realtime trip-updates feed.
// The feed requires an API key issued by the STM developer portal.
type TransitConfig struct {
	TripUpdatesURL string `yaml:"tripUpdatesUrl,omitempty" validate:"omitempty,url"`
	APIKey         string `yaml:"apiKey,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds,omitempty" validate:"gte=0"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty" validate:"omitempty,oneof=trace debug info warn error fatal silent"`
	Style string `yaml:"style,omitempty" validate:"omitempty,oneof=pretty json"`
}

// ReplayToolHistory resolves the replay policy with its default (full replay).
func (c ChatConfig) ReplayHistory() bool {
	return c.ReplayToolHistory == nil || *c.ReplayToolHistory
}
