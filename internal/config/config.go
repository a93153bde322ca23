// Package config provides Viper-based configuration loading for the commentary server.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port serving the game webhooks, the voice webhook and the relay.
	Port int `mapstructure:"port"`
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// SweepInterval is how often closed relay sessions are swept from the registry.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RelayConfig holds ConversationRelay WebSocket endpoint settings.
type RelayConfig struct {
	// Path is the fixed HTTP path the relay endpoint is mounted on.
	Path string `mapstructure:"path"`
	// WriteTimeout is the per-frame write deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PingInterval is the interval between keepalive pings.
	PingInterval time.Duration `mapstructure:"ping_interval"`
	// IdleTimeout closes a connection that sent neither a frame nor a pong for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// MaxFrameBytes limits the size of one inbound frame.
	MaxFrameBytes int64 `mapstructure:"max_frame_bytes"`
}

// TelephonyConfig holds Twilio credentials, numbers and ConversationRelay voice settings.
type TelephonyConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	// ToNumber is the phone number that receives the commentary call.
	ToNumber string `mapstructure:"to_number"`
	// FromNumber is the Twilio number that places the call.
	FromNumber string `mapstructure:"from_number"`
	// PublicBaseURL is the externally reachable base URL of this server,
	// used for the voice webhook callback and the relay WebSocket URL.
	PublicBaseURL         string `mapstructure:"public_base_url"`
	Language              string `mapstructure:"language"`
	TTSProvider           string `mapstructure:"tts_provider"`
	Voice                 string `mapstructure:"voice"`
	TranscriptionProvider string `mapstructure:"transcription_provider"`
	SpeechModel           string `mapstructure:"speech_model"`
	Interruptible         string `mapstructure:"interruptible"`
}

// CallsEnabled reports whether every setting needed to place outbound calls is present.
func (t TelephonyConfig) CallsEnabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" &&
		t.ToNumber != "" && t.FromNumber != "" && t.PublicBaseURL != ""
}

// CommentaryConfig holds Anthropic text-generation settings.
type CommentaryConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int64         `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// Persona is the system instruction given to the model.
	Persona string `mapstructure:"persona"`
	// PhrasesPath optionally overrides the built-in phrase book.
	PhrasesPath string `mapstructure:"phrases_path"`
}

// StrategyConfig holds move selection settings.
type StrategyConfig struct {
	// ScriptPath optionally names a Lua script defining choose_move.
	ScriptPath string `mapstructure:"script_path"`
	// InstructionLimit bounds Lua opcodes per move decision.
	InstructionLimit int `mapstructure:"instruction_limit"`
	// HungerThreshold is the health below which food is favored.
	HungerThreshold int `mapstructure:"hunger_threshold"`
	Author          string `mapstructure:"author"`
	Color           string `mapstructure:"color"`
	Head            string `mapstructure:"head"`
	Tail            string `mapstructure:"tail"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Relay      RelayConfig      `mapstructure:"relay"`
	Telephony  TelephonyConfig  `mapstructure:"telephony"`
	Commentary CommentaryConfig `mapstructure:"commentary"`
	Strategy   StrategyConfig   `mapstructure:"strategy"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// Validate checks all configuration invariants. Absent optional settings are
// not errors; they are reported by Warnings.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateRelay(c.Relay); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateTelephony(c.Telephony); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateCommentary(c.Commentary); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateStrategy(c.Strategy); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Warnings lists the features disabled by missing optional configuration.
//
// Postcondition: Returns an empty slice when every feature is configured.
func (c Config) Warnings() []string {
	var warns []string
	t := c.Telephony
	if t.AccountSID == "" || t.AuthToken == "" {
		warns = append(warns, "telephony credentials not set; outbound calls disabled")
	}
	if t.ToNumber == "" || t.FromNumber == "" {
		warns = append(warns, "telephony.to_number or telephony.from_number not set; outbound calls disabled")
	}
	if t.PublicBaseURL == "" {
		warns = append(warns, "telephony.public_base_url not set; outbound calls disabled and relay URL falls back to localhost")
	}
	if c.Commentary.APIKey == "" {
		warns = append(warns, "commentary.api_key not set; generated commentary disabled")
	}
	return warns
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, "server.shutdown_timeout must not be negative")
	}
	if s.SweepInterval < 0 {
		errs = append(errs, "server.sweep_interval must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRelay(r RelayConfig) error {
	var errs []string
	if !strings.HasPrefix(r.Path, "/") {
		errs = append(errs, fmt.Sprintf("relay.path must start with /, got %q", r.Path))
	}
	if r.WriteTimeout < 0 {
		errs = append(errs, "relay.write_timeout must not be negative")
	}
	if r.PingInterval < 0 {
		errs = append(errs, "relay.ping_interval must not be negative")
	}
	if r.IdleTimeout < 0 {
		errs = append(errs, "relay.idle_timeout must not be negative")
	}
	if r.IdleTimeout > 0 && r.PingInterval >= r.IdleTimeout {
		errs = append(errs, "relay.ping_interval must be shorter than relay.idle_timeout")
	}
	if r.MaxFrameBytes < 0 {
		errs = append(errs, "relay.max_frame_bytes must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateTelephony(t TelephonyConfig) error {
	if t.PublicBaseURL == "" {
		return nil
	}
	u, err := url.Parse(t.PublicBaseURL)
	if err != nil {
		return fmt.Errorf("telephony.public_base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("telephony.public_base_url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("telephony.public_base_url must include a host")
	}
	return nil
}

func validateCommentary(c CommentaryConfig) error {
	var errs []string
	if c.Model == "" {
		errs = append(errs, "commentary.model must not be empty")
	}
	if c.MaxTokens < 1 {
		errs = append(errs, fmt.Sprintf("commentary.max_tokens must be >= 1, got %d", c.MaxTokens))
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		errs = append(errs, fmt.Sprintf("commentary.temperature must be 0-1, got %v", c.Temperature))
	}
	if c.Timeout <= 0 {
		errs = append(errs, "commentary.timeout must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateStrategy(s StrategyConfig) error {
	var errs []string
	if s.InstructionLimit < 0 {
		errs = append(errs, "strategy.instruction_limit must not be negative")
	}
	if s.HungerThreshold < 0 || s.HungerThreshold > 100 {
		errs = append(errs, fmt.Sprintf("strategy.hunger_threshold must be 0-100, got %d", s.HungerThreshold))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path (optional; empty means
// environment and defaults only), applies environment variable overrides,
// and validates the result.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with SNAKECAST_ prefix
	v.SetEnvPrefix("SNAKECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindAliases(v); err != nil {
		return Config{}, err
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// bindAliases accepts the provider-conventional variable names next to the
// prefixed ones. The prefixed name wins when both are set.
func bindAliases(v *viper.Viper) error {
	aliases := map[string][]string{
		"server.port":               {"SNAKECAST_SERVER_PORT", "PORT"},
		"telephony.account_sid":     {"SNAKECAST_TELEPHONY_ACCOUNT_SID", "TWILIO_ACCOUNT_SID"},
		"telephony.auth_token":      {"SNAKECAST_TELEPHONY_AUTH_TOKEN", "TWILIO_AUTH_TOKEN"},
		"telephony.to_number":       {"SNAKECAST_TELEPHONY_TO_NUMBER", "TWILIO_TO_NUMBER"},
		"telephony.from_number":     {"SNAKECAST_TELEPHONY_FROM_NUMBER", "TWILIO_FROM_NUMBER"},
		"telephony.public_base_url": {"SNAKECAST_TELEPHONY_PUBLIC_BASE_URL", "PUBLIC_BASE_URL"},
		"commentary.api_key":        {"SNAKECAST_COMMENTARY_API_KEY", "ANTHROPIC_API_KEY"},
	}
	for key, envs := range aliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("binding env for %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.sweep_interval", "1m")

	v.SetDefault("relay.path", "/relay")
	v.SetDefault("relay.write_timeout", "5s")
	v.SetDefault("relay.ping_interval", "20s")
	v.SetDefault("relay.idle_timeout", "1m")
	v.SetDefault("relay.max_frame_bytes", 64*1024)

	v.SetDefault("telephony.language", "en-US")
	v.SetDefault("telephony.tts_provider", "ElevenLabs")
	v.SetDefault("telephony.voice", "6sFKzaJr574YWVu4UuJF-1.0_0.2_0.0")
	v.SetDefault("telephony.transcription_provider", "Deepgram")
	v.SetDefault("telephony.speech_model", "nova-2-general")
	v.SetDefault("telephony.interruptible", "none")

	v.SetDefault("commentary.model", "claude-3-5-haiku-latest")
	v.SetDefault("commentary.max_tokens", 60)
	v.SetDefault("commentary.temperature", 0.9)
	v.SetDefault("commentary.timeout", "4s")
	v.SetDefault("commentary.persona", DefaultPersona)
	v.SetDefault("commentary.phrases_path", "")

	v.SetDefault("strategy.script_path", "")
	v.SetDefault("strategy.instruction_limit", 200_000)
	v.SetDefault("strategy.hunger_threshold", 40)
	v.SetDefault("strategy.author", "snakecast")
	v.SetDefault("strategy.color", "#2e8b57")
	v.SetDefault("strategy.head", "default")
	v.SetDefault("strategy.tail", "default")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// DefaultPersona is the system instruction used when commentary.persona is unset.
const DefaultPersona = "You are an excitable sports commentator calling a live Battlesnake match " +
	"over the phone. Speak in one or two short, punchy sentences. " +
	"Never use lists, markup or emoji; your words are read aloud."
