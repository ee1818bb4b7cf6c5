package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Log      LogConfig
	AI       AIConfig
	Ollama   OllamaConfig
	Files    FilesConfig
	Events   EventsConfig
	Worker   WorkerConfig
	Wordlist WordlistConfig
}

type ServerConfig struct {
	Port int
	// Token is the bearer token API clients must present.
	Token string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type AIConfig struct {
	// Backend is "openai" or "ollama". With ollama, text comes from the local
	// model and images and speech are unavailable.
	Backend     string
	BaseURL     string
	APIKey      string
	TextModel   string
	ImageModel  string
	SpeechModel string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type FilesConfig struct {
	// Backend is "local" or "minio".
	Backend        string
	PublicURL      string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

type EventsConfig struct {
	NATSURL string
}

type WorkerConfig struct {
	Count        int
	PollInterval time.Duration
}

type WordlistConfig struct {
	MaxWordLen  int
	MaxValueLen int
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4100},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
		AI: AIConfig{
			Backend:     "openai",
			BaseURL:     "https://api.openai.com/v1",
			TextModel:   "gpt-4o-mini",
			ImageModel:  "dall-e-2",
			SpeechModel: "tts-1",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "mistral-nemo",
		},
		Files: FilesConfig{
			Backend:     "local",
			MinioBucket: "aiassist",
		},
		Worker: WorkerConfig{
			Count:        2,
			PollInterval: 500 * time.Millisecond,
		},
		Wordlist: WordlistConfig{
			MaxWordLen:  100,
			MaxValueLen: 100,
		},
	}
}

// Load reads configuration from the JSON file at FilePath, a .env file in the
// working directory, AIASSIST_* environment variables and the OS keyring, in
// increasing order of precedence except that environment variables also
// override keyring secrets.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}
	return loadWith(NewFileBackend(FilePath()), NewKeyringStore(KeyringService))
}

func loadWith(b ConfigBackend, secrets SecretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applySecrets(&cfg, secrets)
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.AI.Backend {
	case "openai", "ollama":
	default:
		return fmt.Errorf("invalid ai.backend %q: want openai or ollama", c.AI.Backend)
	}
	switch c.Files.Backend {
	case "local":
	case "minio":
		if c.Files.MinioEndpoint == "" {
			return fmt.Errorf("missing required config: files.minio_endpoint is required when files.backend is minio")
		}
	default:
		return fmt.Errorf("invalid files.backend %q: want local or minio", c.Files.Backend)
	}
	if c.Worker.Count < 0 {
		return fmt.Errorf("invalid worker.count %d", c.Worker.Count)
	}
	return nil
}

// SlogLevel maps log.level to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// applySecrets fills secret fields from the store. A missing secret is not an
// error; a failing keyring is logged and skipped so that environment
// variables can still supply the value.
func applySecrets(cfg *Config, secrets SecretStore) {
	if secrets == nil {
		return
	}
	for _, s := range specs {
		if !s.secret {
			continue
		}
		v, err := secrets.Get(s.account)
		switch {
		case err == nil:
			if v != "" {
				s.apply(cfg, v)
			}
		case errors.Is(err, ErrSecretNotFound):
		default:
			slog.Warn("could not read secret from keyring", "key", s.key, "error", err)
		}
	}
}
