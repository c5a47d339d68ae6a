package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Environment string           `yaml:"environment"`
	LogLevel    string           `yaml:"logLevel"`
	Server      ServerConfig     `yaml:"server"`
	Pipeline    PipelineConfig   `yaml:"pipeline"`
	Classifier  ClassifierConfig `yaml:"classifier"`
	Suggestion  SuggestionConfig `yaml:"suggestion"`
	Store       StoreConfig      `yaml:"store"`
}

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type PipelineConfig struct {
	UploadDir      string `yaml:"uploadDir"`
	ConvertedDir   string `yaml:"convertedDir"`
	MaxUploadBytes int64  `yaml:"maxUploadBytes"`
	FFmpegPath     string `yaml:"ffmpegPath"`
}

type ClassifierConfig struct {
	BaseURL string `yaml:"baseURL"`
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
}

type SuggestionConfig struct {
	BaseURL     string  `yaml:"baseURL"`
	APIKey      string  `yaml:"apiKey"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"maxTokens"`
	Temperature float64 `yaml:"temperature"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	MongoURI      string `yaml:"mongoURI"`
	MongoDatabase string `yaml:"mongoDatabase"`
}

func Default() *Config {
	return &Config{
		Environment: EnvProduction,
		LogLevel:    "info",
		Server: ServerConfig{
			Address:         ":3001",
			ReadTimeout:     10 * time.Minute,
			WriteTimeout:    15 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Pipeline: PipelineConfig{
			UploadDir:      "./uploads",
			ConvertedDir:   "./converted",
			MaxUploadBytes: 50 << 20,
			FFmpegPath:     "ffmpeg",
		},
		Classifier: ClassifierConfig{
			BaseURL: "https://api-inference.huggingface.co",
			Model:   "dima806/music_genres_classification",
		},
		Suggestion: SuggestionConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			MaxTokens:   800,
			Temperature: 0.8,
		},
		Store: StoreConfig{
			Driver:        "badger",
			Path:          "./data",
			RedisAddr:     "localhost:6379",
			MongoDatabase: "chatApp",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, a .env file in the working directory and finally the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env file", "err", err)
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Environment, "ENVIRONMENT")
	setString(&c.LogLevel, "LOG_LEVEL")

	if port := os.Getenv("PORT"); port != "" {
		c.Server.Address = ":" + port
	}
	setString(&c.Server.Address, "SERVER_ADDRESS")

	setString(&c.Pipeline.UploadDir, "UPLOAD_DIR")
	setString(&c.Pipeline.ConvertedDir, "CONVERTED_DIR")
	setString(&c.Pipeline.FFmpegPath, "FFMPEG_PATH")
	if v := os.Getenv("MAX_UPLOAD_MB"); v != "" {
		mb, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
		}
		c.Pipeline.MaxUploadBytes = mb << 20
	}

	setString(&c.Classifier.BaseURL, "HUGGINGFACE_BASE_URL")
	setString(&c.Classifier.APIKey, "HUGGINGFACE_API_KEY")
	setString(&c.Classifier.Model, "CLASSIFIER_MODEL")

	setString(&c.Suggestion.BaseURL, "OPENAI_BASE_URL")
	setString(&c.Suggestion.APIKey, "OPENAI_API_KEY")
	setString(&c.Suggestion.Model, "OPENAI_MODEL")
	if v := os.Getenv("SUGGESTION_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SUGGESTION_MAX_TOKENS: %w", err)
		}
		c.Suggestion.MaxTokens = n
	}
	if v := os.Getenv("SUGGESTION_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse SUGGESTION_TEMPERATURE: %w", err)
		}
		c.Suggestion.Temperature = f
	}

	setString(&c.Store.Driver, "STORE_DRIVER")
	setString(&c.Store.Path, "STORE_PATH")
	setString(&c.Store.RedisAddr, "REDIS_ADDR")
	setString(&c.Store.RedisPassword, "REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse REDIS_DB: %w", err)
		}
		c.Store.RedisDB = n
	}
	setString(&c.Store.MongoURI, "MONGODB_URI")
	setString(&c.Store.MongoDatabase, "MONGODB_DATABASE")

	return nil
}

func (c *Config) Validate() error {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.Environment == "" {
		c.Environment = EnvProduction
	}
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case "badger", "memory", "redis":
	case "mongo":
		if c.Store.MongoURI == "" {
			return errors.New("config: MONGODB_URI is required for the mongo store")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Pipeline.MaxUploadBytes <= 0 {
		return errors.New("config: max upload size must be positive")
	}
	if c.Suggestion.Temperature < 0 || c.Suggestion.Temperature > 2 {
		return fmt.Errorf("config: temperature %.2f out of range [0,2]", c.Suggestion.Temperature)
	}
	if c.Suggestion.MaxTokens <= 0 {
		return errors.New("config: suggestion max tokens must be positive")
	}

	for _, dir := range []*string{&c.Pipeline.UploadDir, &c.Pipeline.ConvertedDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return fmt.Errorf("config: resolve %s: %w", *dir, err)
		}
		*dir = abs
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}
