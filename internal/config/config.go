package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/normanking/t031a5/internal/conversation"
	"github.com/normanking/t031a5/internal/fuser"
	"github.com/normanking/t031a5/internal/llm"
	"github.com/normanking/t031a5/internal/logging"
	"github.com/normanking/t031a5/internal/plugin"
	"github.com/normanking/t031a5/internal/safety"
	"github.com/normanking/t031a5/pkg/types"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "T031A5"

// Config holds the whole runtime configuration.
type Config struct {
	Name         string  `mapstructure:"name" yaml:"name"`
	Hertz        float64 `mapstructure:"hertz" yaml:"hertz"`
	SystemPrompt string  `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`

	Logging      LoggingConfig       `mapstructure:"logging" yaml:"logging"`
	Fuser        fuser.Config        `mapstructure:"fuser" yaml:"fuser"`
	LLM          llm.Config          `mapstructure:"llm" yaml:"llm"`
	Conversation conversation.Config `mapstructure:"conversation_engine" yaml:"conversation_engine"`

	Inputs  map[string]PluginConfig `mapstructure:"agent_inputs" yaml:"agent_inputs"`
	Actions map[string]PluginConfig `mapstructure:"agent_actions" yaml:"agent_actions"`

	Safety    safety.Config   `mapstructure:"safety" yaml:"safety"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts" yaml:"timeouts"`
}

// LoggingConfig configures the root logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// File is an optional log file, appended to
	File string `mapstructure:"file" yaml:"file,omitempty"`
	// Console selects human readable output instead of JSON
	Console bool `mapstructure:"console" yaml:"console"`
	NoColor bool `mapstructure:"no_color" yaml:"no_color,omitempty"`
}

// ToLogging converts to the logging package's config.
func (c LoggingConfig) ToLogging() logging.Config {
	return logging.Config{Level: c.Level, File: c.File, Console: c.Console, NoColor: c.NoColor}
}

// PluginConfig is one agent_inputs or agent_actions block.
type PluginConfig struct {
	// Type overrides the map key as the plugin type.
	Type string `mapstructure:"type" yaml:"type,omitempty"`
	Name string `mapstructure:"name" yaml:"name,omitempty"`
	// Enabled defaults to true when absent.
	Enabled  *bool          `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Priority int            `mapstructure:"priority" yaml:"priority,omitempty"`
	Timeout  time.Duration  `mapstructure:"timeout" yaml:"timeout,omitempty"`
	Driver   string         `mapstructure:"driver" yaml:"driver,omitempty"`
	Options  map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// HistoryConfig configures the conversation history store.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
	// WarmStart is how many persisted turns seed the engine at startup.
	WarmStart int `mapstructure:"warm_start" yaml:"warm_start"`
	// Retention prunes older turns at startup; zero keeps everything.
	Retention time.Duration `mapstructure:"retention" yaml:"retention,omitempty"`
}

// DashboardConfig configures the optional dashboard controller.
type DashboardConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	// Replay is how many recent events a new stream client receives.
	Replay int `mapstructure:"replay" yaml:"replay"`
}

// TimeoutsConfig bounds plugin and generation calls.
type TimeoutsConfig struct {
	PluginCall    time.Duration `mapstructure:"plugin_call" yaml:"plugin_call"`
	Lifecycle     time.Duration `mapstructure:"lifecycle" yaml:"lifecycle"`
	EmergencyStop time.Duration `mapstructure:"emergency_stop" yaml:"emergency_stop"`
	// Generation overrides llm.timeout when set.
	Generation time.Duration `mapstructure:"generation" yaml:"generation,omitempty"`
}

// Default returns a configuration that runs offline: console voice,
// simulated vision and state, log actions and the mock generator.
func Default() *Config {
	return &Config{
		Name:         "t031a5",
		Hertz:        10,
		Logging:      LoggingConfig{Level: "info", Console: true},
		Fuser:        fuser.DefaultConfig(),
		LLM:          llm.DefaultConfig(),
		Conversation: conversation.DefaultConfig(),
		Inputs: map[string]PluginConfig{
			types.InputVoice:  {Driver: "console"},
			types.InputVision: {Driver: "simulated"},
			types.InputState:  {Driver: "simulated"},
		},
		Actions: map[string]PluginConfig{
			types.ActionSpeech:   {Driver: "log"},
			types.ActionEmotion:  {Driver: "log"},
			types.ActionArms:     {Driver: "log"},
			types.ActionMovement: {Driver: "log"},
			types.ActionAudio:    {Driver: "log"},
		},
		Safety: safety.DefaultConfig(),
		History: HistoryConfig{
			Enabled:   true,
			Dir:       "~/.t031a5",
			WarmStart: 10,
		},
		Dashboard: DashboardConfig{
			Addr:   "127.0.0.1:8765",
			Replay: 50,
		},
		Timeouts: TimeoutsConfig{
			PluginCall:    2 * time.Second,
			Lifecycle:     5 * time.Second,
			EmergencyStop: time.Second,
		},
	}
}

// DefaultPath returns ~/.t031a5/config.yaml.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".t031a5", "config.yaml")
	}
	return filepath.Join(homeDir, ".t031a5", "config.yaml")
}

// Load reads the configuration from DefaultPath.
func Load() (*Config, error) {
	return LoadFromPath(DefaultPath())
}

// LoadFromPath reads configuration from path and merges environment
// overrides. If the file doesn't exist, it is created with default values.
func LoadFromPath(path string) (*Config, error) {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Example: T031A5_LLM_PROVIDER=ollama
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	// Maps are replaced wholesale when present in the file.
	cfg.Inputs, cfg.Actions = nil, nil
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// bindEnv registers the scalar keys so AutomaticEnv also applies to keys
// missing from the file.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"name", "hertz", "system_prompt",
		"logging.level", "logging.file", "logging.console",
		"fuser.type", "fuser.fusion_strategy", "fuser.min_confidence",
		"llm.provider", "llm.model", "llm.endpoint", "llm.api_key", "llm.fallback_provider", "llm.timeout",
		"conversation_engine.enabled",
		"safety.enable_emergency_stop",
		"history.enabled", "history.dir",
		"dashboard.enabled", "dashboard.addr",
	} {
		_ = v.BindEnv(key)
	}
}

// normalize restores case-sensitive plugin type names folded by viper and
// expands paths.
func (c *Config) normalize() {
	c.Inputs = canonicalKeys(c.Inputs, inputTypes)
	c.Actions = canonicalKeys(c.Actions, actionTypes)
	c.Fuser.PriorityWeights = canonicalWeights(c.Fuser.PriorityWeights)
	c.Fuser.ModalityWeights = canonicalWeights(c.Fuser.ModalityWeights)
	c.Logging.File = expandPath(c.Logging.File)
	c.History.Dir = expandPath(c.History.Dir)
}

var (
	inputTypes  = []string{types.InputVoice, types.InputVision, types.InputState, types.InputSensors, types.InputGPS}
	actionTypes = []string{types.ActionSpeech, types.ActionEmotion, types.ActionArms, types.ActionMovement, types.ActionAudio}
)

func canonical(key string, known []string) string {
	for _, k := range known {
		if strings.EqualFold(k, key) {
			return k
		}
	}
	return key
}

func canonicalWeights(in map[string]float64) map[string]float64 {
	if len(in) == 0 {
		return in
	}
	out := make(map[string]float64, len(in))
	for k, w := range in {
		out[canonical(k, inputTypes)] = w
	}
	return out
}

func canonicalKeys(in map[string]PluginConfig, known []string) map[string]PluginConfig {
	out := make(map[string]PluginConfig, len(in))
	for k, pc := range in {
		out[canonical(k, known)] = pc
	}
	return out
}

// InputPlugins converts agent_inputs to plugin configs ordered by type.
func (c *Config) InputPlugins() []plugin.Config {
	return pluginConfigs(c.Inputs, c.Timeouts.PluginCall)
}

// ActionPlugins converts agent_actions to plugin configs ordered by type.
func (c *Config) ActionPlugins() []plugin.Config {
	return pluginConfigs(c.Actions, c.Timeouts.PluginCall)
}

func pluginConfigs(blocks map[string]PluginConfig, defTimeout time.Duration) []plugin.Config {
	keys := make([]string, 0, len(blocks))
	for k := range blocks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]plugin.Config, 0, len(keys))
	for _, k := range keys {
		b := blocks[k]
		pc := plugin.Config{
			Type:     k,
			Name:     b.Name,
			Enabled:  b.Enabled == nil || *b.Enabled,
			Priority: b.Priority,
			Timeout:  b.Timeout,
			Driver:   b.Driver,
			Options:  b.Options,
		}
		if b.Type != "" {
			pc.Type = b.Type
		}
		if pc.Priority == 0 {
			pc.Priority = 1
		}
		if pc.Timeout == 0 {
			pc.Timeout = defTimeout
		}
		out = append(out, pc)
	}
	return out
}

// GenerationTimeout returns timeouts.generation, falling back to llm.timeout.
func (c *Config) GenerationTimeout() time.Duration {
	if c.Timeouts.Generation > 0 {
		return c.Timeouts.Generation
	}
	return c.LLM.Timeout
}

// SaveToPath writes the configuration to path.
func (c *Config) SaveToPath(path string) error {
	path = expandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

// Validate checks the configuration for errors that would only surface at
// runtime.
func (c *Config) Validate() error {
	if c.Hertz < 1 || c.Hertz > 100 {
		return fmt.Errorf("hertz must be between 1 and 100, got %v", c.Hertz)
	}

	switch c.Fuser.Type {
	case fuser.TypePriority, fuser.TypeMultimodal:
	default:
		return fmt.Errorf("invalid fuser.type '%s', must be one of: priority, multimodal", c.Fuser.Type)
	}
	if c.Fuser.Type == fuser.TypeMultimodal {
		switch c.Fuser.FusionStrategy {
		case fuser.StrategyWeighted, fuser.StrategyConcatenate, fuser.StrategyAttention:
		default:
			return fmt.Errorf("invalid fuser.fusion_strategy '%s', must be one of: weighted, concatenate, attention", c.Fuser.FusionStrategy)
		}
	}

	if !llm.IsKnownProvider(c.LLM.Provider) {
		return fmt.Errorf("unknown llm.provider '%s', must be one of: %s", c.LLM.Provider, strings.Join(llm.KnownProviders(), ", "))
	}
	if fb := c.LLM.FallbackProvider; fb != "" && !llm.IsKnownProvider(fb) {
		return fmt.Errorf("unknown llm.fallback_provider '%s'", fb)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	if c.Timeouts.PluginCall <= 0 || c.Timeouts.Lifecycle <= 0 || c.Timeouts.EmergencyStop <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.GenerationTimeout() <= 0 {
		return fmt.Errorf("generation timeout must be positive")
	}
	if c.Conversation.HistorySize <= 0 {
		return fmt.Errorf("conversation_engine.history_size must be positive")
	}
	if c.History.WarmStart < 0 {
		return fmt.Errorf("history.warm_start cannot be negative")
	}
	if c.History.Enabled && c.History.Dir == "" {
		return fmt.Errorf("history.dir is required when history is enabled")
	}
	if c.Dashboard.Enabled && c.Dashboard.Addr == "" {
		return fmt.Errorf("dashboard.addr is required when the dashboard is enabled")
	}
	if len(c.Inputs) == 0 {
		return fmt.Errorf("agent_inputs cannot be empty")
	}
	if len(c.Actions) == 0 {
		return fmt.Errorf("agent_actions cannot be empty")
	}
	return nil
}

// writeConfigFile writes a Config struct to a YAML file.
func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandPath expands ~ to the user's home directory in a path string.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
