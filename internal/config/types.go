package config

import "time"

// Config is the top-level interviewpro configuration.
type Config struct {
	Model     ModelConfig     `json:"model"`
	Interview InterviewConfig `json:"interview"`
	Server    ServerConfig    `json:"server"`
	Export    ExportConfig    `json:"export"`
}

// ModelConfig selects and tunes the model backend.
type ModelConfig struct {
	// Provider is one of "gemini", "copilot" or "scripted".
	Provider string `json:"provider"`
	Name     string `json:"name"`
	APIKey   string `json:"api_key,omitempty"`
	// ThinkingBudget is the reasoning token budget for each session.
	ThinkingBudget int    `json:"thinking_budget"`
	TurnTimeout    string `json:"turn_timeout,omitempty"`
	// CopilotServer is the URL of an already running Copilot CLI server.
	// Empty means the SDK starts its own.
	CopilotServer string `json:"copilot_server,omitempty"`
}

// ParseTurnTimeout returns the per-request timeout. Empty or invalid values
// mean no timeout.
func (m ModelConfig) ParseTurnTimeout() time.Duration {
	if m.TurnTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(m.TurnTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// InterviewConfig holds setup form defaults.
type InterviewConfig struct {
	DefaultLanguage string   `json:"default_language"`
	Languages       []string `json:"languages"`
}

// ServerConfig holds dashboard settings.
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// ExportConfig controls where transcripts are saved.
type ExportConfig struct {
	Dir string `json:"dir"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model: ModelConfig{
			Provider:       "gemini",
			Name:           "gemini-3-pro-preview",
			ThinkingBudget: 32768,
		},
		Interview: InterviewConfig{
			DefaultLanguage: "English",
			Languages:       []string{"English", "中文", "Spanish", "French", "German", "Japanese"},
		},
		Server: ServerConfig{
			Port: 4099,
			Host: "127.0.0.1",
		},
		Export: ExportConfig{
			Dir: "~/.local/share/interviewpro/transcripts",
		},
	}
}
