package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	isolate(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":3001" {
		t.Fatalf("expected default address :3001, got %q", cfg.Server.Address)
	}
	if cfg.Suggestion.Model != "gpt-4o-mini" || cfg.Suggestion.MaxTokens != 800 || cfg.Suggestion.Temperature != 0.8 {
		t.Fatalf("unexpected suggestion defaults: %+v", cfg.Suggestion)
	}
	if cfg.Store.Driver != "badger" {
		t.Fatalf("expected badger store by default, got %q", cfg.Store.Driver)
	}
	if !filepath.IsAbs(cfg.Pipeline.UploadDir) || !filepath.IsAbs(cfg.Pipeline.ConvertedDir) {
		t.Fatalf("expected absolute scratch dirs, got %q and %q", cfg.Pipeline.UploadDir, cfg.Pipeline.ConvertedDir)
	}
	if cfg.IsDevelopment() || cfg.Environment != EnvProduction {
		t.Fatalf("expected production environment by default, got %q", cfg.Environment)
	}
	if cfg.Server.ReadTimeout < 5*time.Minute {
		t.Fatalf("read timeout %s too short for a %d byte upload", cfg.Server.ReadTimeout, cfg.Pipeline.MaxUploadBytes)
	}
}

func TestLoad_EnvironmentIsCaseInsensitive(t *testing.T) {
	tests := []struct {
		value    string
		wantDev  bool
		wantNorm string
	}{
		{value: "Development", wantDev: true, wantNorm: EnvDevelopment},
		{value: " DEVELOPMENT ", wantDev: true, wantNorm: EnvDevelopment},
		{value: "Production", wantDev: false, wantNorm: EnvProduction},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.value, func(t *testing.T) {
			isolate(t, t.TempDir())
			t.Setenv("ENVIRONMENT", tt.value)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.IsDevelopment() != tt.wantDev || cfg.Environment != tt.wantNorm {
				t.Fatalf("environment %q: got %q (development=%v)", tt.value, cfg.Environment, cfg.IsDevelopment())
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t, t.TempDir())
	t.Setenv("PORT", "9000")
	t.Setenv("MAX_UPLOAD_MB", "5")
	t.Setenv("OPENAI_MODEL", "gpt-test")
	t.Setenv("SUGGESTION_TEMPERATURE", "0.3")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":9000" {
		t.Fatalf("expected :9000, got %q", cfg.Server.Address)
	}
	if cfg.Pipeline.MaxUploadBytes != 5<<20 {
		t.Fatalf("expected 5MB limit, got %d", cfg.Pipeline.MaxUploadBytes)
	}
	if cfg.Suggestion.Model != "gpt-test" || cfg.Suggestion.Temperature != 0.3 {
		t.Fatalf("unexpected suggestion config: %+v", cfg.Suggestion)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("expected memory driver, got %q", cfg.Store.Driver)
	}
	if cfg.IsDevelopment() {
		t.Fatalf("expected production environment")
	}
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	isolate(t, dir)

	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
logLevel: debug
server:
  address: ":7000"
  shutdownTimeout: 5s
suggestion:
  model: from-file
  maxTokens: 100
store:
  driver: redis
  redisAddr: "redis:6379"
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("OPENAI_MODEL", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Server.Address != ":7000" {
		t.Fatalf("yaml values not applied: %+v", cfg)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Fatalf("expected 5s shutdown timeout, got %s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Suggestion.Model != "from-env" {
		t.Fatalf("env should override file, got %q", cfg.Suggestion.Model)
	}
	if cfg.Suggestion.MaxTokens != 100 {
		t.Fatalf("expected max tokens from file, got %d", cfg.Suggestion.MaxTokens)
	}
	if cfg.Store.Driver != "redis" || cfg.Store.RedisAddr != "redis:6379" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "cassandra" }, wantErr: true},
		{name: "mongo without uri", mutate: func(c *Config) { c.Store.Driver = "mongo" }, wantErr: true},
		{name: "mongo with uri", mutate: func(c *Config) {
			c.Store.Driver = "mongo"
			c.Store.MongoURI = "mongodb://localhost:27017"
		}},
		{name: "zero upload limit", mutate: func(c *Config) { c.Pipeline.MaxUploadBytes = 0 }, wantErr: true},
		{name: "temperature too high", mutate: func(c *Config) { c.Suggestion.Temperature = 3 }, wantErr: true},
		{name: "no tokens", mutate: func(c *Config) { c.Suggestion.MaxTokens = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected err=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

var envKeys = []string{
	"CONFIG_FILE", "ENVIRONMENT", "LOG_LEVEL", "PORT", "SERVER_ADDRESS", "UPLOAD_DIR", "CONVERTED_DIR",
	"FFMPEG_PATH", "MAX_UPLOAD_MB", "HUGGINGFACE_BASE_URL", "HUGGINGFACE_API_KEY", "CLASSIFIER_MODEL",
	"OPENAI_BASE_URL", "OPENAI_API_KEY", "OPENAI_MODEL", "SUGGESTION_MAX_TOKENS", "SUGGESTION_TEMPERATURE",
	"STORE_DRIVER", "STORE_PATH", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "MONGODB_URI", "MONGODB_DATABASE",
}

// isolate runs the test from dir with every recognised variable blanked.
func isolate(t *testing.T, dir string) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
