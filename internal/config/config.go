package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM      LLMConfig      `toml:"llm"`
	Search   SearchConfig   `toml:"search"`
	Docs     DocsConfig     `toml:"docs"`
	Run      RunConfig      `toml:"run"`
	Report   ReportConfig   `toml:"report"`
	Observer ObserverConfig `toml:"observer"`
}

type LLMConfig struct {
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	// RPM and TPM cap request and token throughput. Zero disables the cap.
	RPM int `toml:"rpm"`
	TPM int `toml:"tpm"`
}

type SearchConfig struct {
	BraveAPIKey string `toml:"brave_api_key"`
	MaxResults  int    `toml:"max_results"`
}

type DocsConfig struct {
	// Backend selects the document store: "sqlite" or "postgres".
	Backend string `toml:"backend"`
	// Path is the sqlite database file.
	Path string `toml:"path"`
	// DSN is the postgres connection string (postgres backend only).
	DSN string `toml:"dsn"`
	// BaseURL overrides the document link base embedded in stage output.
	BaseURL string `toml:"base_url"`
}

type RunConfig struct {
	ToolRounds       int `toml:"tool_rounds"`
	ModelTimeoutSecs int `toml:"model_timeout_secs"`
	ToolTimeoutSecs  int `toml:"tool_timeout_secs"`
}

type ReportConfig struct {
	// Dir is where rendered report files are written. Empty disables reports.
	Dir string `toml:"dir"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM:    LLMConfig{Model: "google/gemini-2.0-flash-exp:free", BaseURL: "https://openrouter.ai/api/v1"},
		Search: SearchConfig{MaxResults: 8},
		Docs:   DocsConfig{Backend: "sqlite", Path: "lyceum.db"},
		Run:    RunConfig{ToolRounds: 5, ModelTimeoutSecs: 120, ToolTimeoutSecs: 60},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "lyceum.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("LYCEUM_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LYCEUM_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LYCEUM_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LYCEUM_BRAVE_API_KEY"); v != "" {
		cfg.Search.BraveAPIKey = v
	}
	if v := os.Getenv("LYCEUM_DOCS_PATH"); v != "" {
		cfg.Docs.Path = v
	}
	if v := os.Getenv("LYCEUM_DOCS_DSN"); v != "" {
		cfg.Docs.DSN = v
	}
	if os.Getenv("LYCEUM_OBSERVER_ENABLED") == "true" || os.Getenv("LYCEUM_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	// Fallbacks
	if cfg.Docs.Backend == "" {
		cfg.Docs.Backend = "sqlite"
	}
	if cfg.Docs.Backend == "postgres" && cfg.Docs.DSN == "" && cfg.Docs.Path != "" {
		// A postgres backend without a DSN is a misconfiguration; fall back
		// to sqlite so a bare `lyceum` invocation still works.
		cfg.Docs.Backend = "sqlite"
	}

	return cfg
}
