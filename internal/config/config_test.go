package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// unsetEnv clears key for the duration of the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("INDEX_VERSION", "v1")
	unsetEnv(t, "LOG_LEVEL")

	cfg, err := Load("", noEnvFile(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LLM.APIKey != "test-key" {
		t.Errorf("LLM.APIKey = %q, want test-key", cfg.LLM.APIKey)
	}
	if cfg.Index.Version != "v1" {
		t.Errorf("Index.Version = %q, want v1", cfg.Index.Version)
	}
	if cfg.Log.Level != "INFO" {
		t.Errorf("Log.Level = %q, want INFO", cfg.Log.Level)
	}
	if cfg.LLM.Model != "models/gemini-1.5-flash" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.Generation.TopK != 40 || cfg.LLM.Generation.Temperature != 0.1 || cfg.LLM.Generation.TopP != 0.95 {
		t.Errorf("unexpected generation defaults: %+v", cfg.LLM.Generation)
	}
	if cfg.LLM.Generation.MaxOutputTokens != 8192 {
		t.Errorf("max_output_tokens = %d, want 8192", cfg.LLM.Generation.MaxOutputTokens)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Errorf("LLM.Timeout = %v, want 30s", cfg.LLM.Timeout)
	}
	if cfg.Answer.Confidence.Policy != "constant" || cfg.Answer.Confidence.Value != 0.85 {
		t.Errorf("unexpected confidence defaults: %+v", cfg.Answer.Confidence)
	}
	if !cfg.Answer.Shortcut.Enabled || len(cfg.Answer.Shortcut.Keywords) != 2 {
		t.Errorf("unexpected shortcut defaults: %+v", cfg.Answer.Shortcut)
	}
	if got, want := cfg.Index.IndexPath(), filepath.Join("data", "index_v1.faiss"); got != want {
		t.Errorf("IndexPath() = %q, want %q", got, want)
	}
	if got, want := cfg.Index.MetadataPath(), filepath.Join("data", "metadata_v1.json"); got != want {
		t.Errorf("MetadataPath() = %q, want %q", got, want)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	unsetEnv(t, "GEMINI_API_KEY")
	unsetEnv(t, "LLM_API_KEY")
	unsetEnv(t, "OPENAI_API_KEY")
	unsetEnv(t, "INDEX_VERSION")

	_, err := Load("", noEnvFile(t))
	if err == nil {
		t.Fatal("Load() should fail without required settings")
	}
	for _, want := range []string{"INDEX_VERSION", "GEMINI_API_KEY"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err.Error(), want)
		}
	}
}

func TestLoad_EnvFile(t *testing.T) {
	unsetEnv(t, "GEMINI_API_KEY")
	unsetEnv(t, "INDEX_VERSION")
	t.Setenv("LOG_LEVEL", "DEBUG")

	envPath := filepath.Join(t.TempDir(), ".env")
	content := "GEMINI_API_KEY=from-dotenv\nINDEX_VERSION=v7\nLOG_LEVEL=ERROR\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("", envPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.APIKey != "from-dotenv" || cfg.Index.Version != "v7" {
		t.Errorf("dotenv values not loaded: key=%q version=%q", cfg.LLM.APIKey, cfg.Index.Version)
	}
	// Real environment wins over the .env file.
	if cfg.Log.Level != "DEBUG" {
		t.Errorf("Log.Level = %q, want DEBUG", cfg.Log.Level)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("INDEX_VERSION", "v2")
	unsetEnv(t, "SERVER_PORT")

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: "9090"
answer:
  confidence:
    policy: mean_positive
llm:
  timeout: 5s
  max_retries: 1
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, noEnvFile(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Answer.Confidence.Policy != "mean_positive" {
		t.Errorf("Confidence.Policy = %q", cfg.Answer.Confidence.Policy)
	}
	if cfg.LLM.Timeout != 5*time.Second || cfg.LLM.MaxRetries != 1 {
		t.Errorf("LLM timeout/retries = %v/%d", cfg.LLM.Timeout, cfg.LLM.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Index:     IndexConfig{Version: "v1", Backend: "flat"},
			Embedding: EmbeddingConfig{Dimensions: 384},
			LLM:       LLMConfig{APIKey: "k", Timeout: time.Second, MaxRetries: 2},
			Answer:    AnswerConfig{Confidence: ConfidenceConfig{Policy: "constant", Value: 0.85}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"path traversal in version", func(c *Config) { c.Index.Version = "../v1" }, "path separators"},
		{"unknown backend", func(c *Config) { c.Index.Backend = "faiss-gpu" }, "index.backend"},
		{"too many retries", func(c *Config) { c.LLM.MaxRetries = 9 }, "max_retries"},
		{"zero timeout", func(c *Config) { c.LLM.Timeout = 0 }, "llm.timeout"},
		{"unknown policy", func(c *Config) { c.Answer.Confidence.Policy = "random" }, "policy"},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }, "auth.secret"},
		{"rate limit without window", func(c *Config) { c.RateLimit = RateLimitConfig{Enabled: true, Requests: 1} }, "rate_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
