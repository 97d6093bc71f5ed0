package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/normanking/t031a5/internal/fuser"
	"github.com/normanking/t031a5/internal/llm"
	"github.com/normanking/t031a5/pkg/types"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Hertz != 10 {
		t.Errorf("expected 10 Hz, got %v", cfg.Hertz)
	}
	if cfg.LLM.Provider != llm.ProviderMock {
		t.Errorf("expected default provider 'mock', got '%s'", cfg.LLM.Provider)
	}
	if cfg.Fuser.Type != fuser.TypeMultimodal {
		t.Errorf("expected multimodal fuser, got '%s'", cfg.Fuser.Type)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got '%s'", cfg.Logging.Level)
	}
	if cfg.Dashboard.Enabled {
		t.Error("expected dashboard to be disabled by default")
	}
	if len(cfg.Inputs) != 3 {
		t.Errorf("expected 3 default inputs, got %d", len(cfg.Inputs))
	}
	if len(cfg.Actions) != 5 {
		t.Errorf("expected 5 default actions, got %d", len(cfg.Actions))
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, ".t031a5", "config.yaml")

	// Load config (should create default)
	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}
	if cfg.LLM.Provider != llm.ProviderMock {
		t.Errorf("expected provider 'mock', got '%s'", cfg.LLM.Provider)
	}
	if _, ok := cfg.Inputs[types.InputVoice]; !ok {
		t.Errorf("expected %s input after reload, got keys %v", types.InputVoice, keys(cfg.Inputs))
	}
	if cfg.Timeouts.PluginCall != 2*time.Second {
		t.Errorf("expected plugin call timeout 2s, got %v", cfg.Timeouts.PluginCall)
	}

	cfg2, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load existing config: %v", err)
	}
	if cfg2.Hertz != cfg.Hertz || cfg2.Fuser.FusionStrategy != cfg.Fuser.FusionStrategy {
		t.Error("config values changed on reload")
	}
}

func TestLoadFromPathPluginBlocks(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
name: tobias
hertz: 5
fuser:
  type: priority
  priority_weights:
    G1Voice: 2.0
agent_inputs:
  G1Voice:
    driver: console
    priority: 3
  G1Vision:
    driver: simulated
    enabled: false
  camera_left:
    type: G1Vision
    driver: simulated
    options:
      faces: 2
agent_actions:
  G1Speech:
    driver: log
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Name != "tobias" || cfg.Hertz != 5 {
		t.Errorf("unexpected name/hertz: %s %v", cfg.Name, cfg.Hertz)
	}
	if cfg.Fuser.PriorityWeights[types.InputVoice] != 2.0 {
		t.Errorf("expected case restored priority weight, got %v", cfg.Fuser.PriorityWeights)
	}
	if len(cfg.Actions) != 1 {
		t.Errorf("file action map should replace defaults, got %v", keys(cfg.Actions))
	}

	inputs := cfg.InputPlugins()
	if len(inputs) != 3 {
		t.Fatalf("expected 3 inputs, got %d", len(inputs))
	}
	byType := map[string]int{}
	for _, in := range inputs {
		byType[in.Type]++
		if in.Timeout != cfg.Timeouts.PluginCall {
			t.Errorf("%s: expected default timeout, got %v", in.Type, in.Timeout)
		}
		switch {
		case in.Type == types.InputVoice:
			if in.Priority != 3 || !in.Enabled {
				t.Errorf("voice block decoded wrong: %+v", in)
			}
		case in.Driver == "simulated" && in.Options != nil:
			if in.Options["faces"] != 2 {
				t.Errorf("expected faces option, got %v", in.Options)
			}
		}
	}
	if byType[types.InputVision] != 2 {
		t.Errorf("expected two vision plugins, got %v", byType)
	}
	var disabled int
	for _, in := range inputs {
		if !in.Enabled {
			disabled++
		}
	}
	if disabled != 1 {
		t.Errorf("expected one disabled input, got %d", disabled)
	}
}

func TestEnvOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("T031A5_LLM_PROVIDER", "ollama")
	t.Setenv("T031A5_HERTZ", "20")

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.LLM.Provider != "ollama" {
		t.Errorf("expected env provider 'ollama', got '%s'", cfg.LLM.Provider)
	}
	if cfg.Hertz != 20 {
		t.Errorf("expected env hertz 20, got %v", cfg.Hertz)
	}
}

func TestSaveToPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Hertz = 25
	cfg.LLM.Provider = llm.ProviderAnthropic
	cfg.Dashboard.Enabled = true

	if err := cfg.SaveToPath(configPath); err != nil {
		t.Fatalf("failed to save config: %v", err)
	}

	loaded, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Hertz != 25 {
		t.Errorf("expected hertz 25, got %v", loaded.Hertz)
	}
	if loaded.LLM.Provider != llm.ProviderAnthropic {
		t.Errorf("expected provider 'anthropic', got '%s'", loaded.LLM.Provider)
	}
	if !loaded.Dashboard.Enabled {
		t.Error("expected dashboard enabled after reload")
	}
	if loaded.Conversation.VisualCooldown != 5*time.Second {
		t.Errorf("expected visual cooldown to round trip, got %v", loaded.Conversation.VisualCooldown)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"hertz too low", func(c *Config) { c.Hertz = 0 }, true},
		{"hertz too high", func(c *Config) { c.Hertz = 101 }, true},
		{"unknown fuser", func(c *Config) { c.Fuser.Type = "bayesian" }, true},
		{"unknown strategy", func(c *Config) { c.Fuser.FusionStrategy = "voting" }, true},
		{"priority ignores strategy", func(c *Config) {
			c.Fuser.Type = fuser.TypePriority
			c.Fuser.FusionStrategy = "voting"
		}, false},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "gemini" }, true},
		{"unknown fallback", func(c *Config) { c.LLM.FallbackProvider = "grok" }, true},
		{"invalid log level", func(c *Config) { c.Logging.Level = "trace" }, true},
		{"zero plugin timeout", func(c *Config) { c.Timeouts.PluginCall = 0 }, true},
		{"generation override", func(c *Config) {
			c.LLM.Timeout = 0
			c.Timeouts.Generation = time.Second
		}, false},
		{"no generation timeout", func(c *Config) { c.LLM.Timeout = 0 }, true},
		{"no inputs", func(c *Config) { c.Inputs = nil }, true},
		{"no actions", func(c *Config) { c.Actions = map[string]PluginConfig{} }, true},
		{"history without dir", func(c *Config) { c.History.Dir = "" }, true},
		{"dashboard without addr", func(c *Config) {
			c.Dashboard.Enabled = true
			c.Dashboard.Addr = ""
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"~/.t031a5", filepath.Join(homeDir, ".t031a5")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := expandPath(tt.input); got != tt.expected {
			t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func keys(m map[string]PluginConfig) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
