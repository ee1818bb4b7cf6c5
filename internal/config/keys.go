package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key string
	typ keyType
	env string
	// secret keys are read from the keyring under account, never from the
	// config file.
	secret  bool
	account string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "AIASSIST_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "AIASSIST_API_TOKEN",
		secret: true, account: AccountAPIToken,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "storage.data_dir", typ: kString, env: "AIASSIST_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "AIASSIST_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "ai.backend", typ: kString, env: "AIASSIST_AI_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.AI.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.Backend },
	},
	{
		key: "ai.base_url", typ: kString, env: "AIASSIST_AI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.AI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.BaseURL },
	},
	{
		key: "ai.api_key", typ: kString, env: "AIASSIST_AI_API_KEY",
		secret: true, account: AccountAIKey,
		apply:   func(cfg *Config, v any) { cfg.AI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.APIKey },
	},
	{
		key: "ai.text_model", typ: kString, env: "AIASSIST_AI_TEXT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.TextModel = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.TextModel },
	},
	{
		key: "ai.image_model", typ: kString, env: "AIASSIST_AI_IMAGE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.ImageModel = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.ImageModel },
	},
	{
		key: "ai.speech_model", typ: kString, env: "AIASSIST_AI_SPEECH_MODEL",
		apply:   func(cfg *Config, v any) { cfg.AI.SpeechModel = v.(string) },
		extract: func(cfg Config) any { return cfg.AI.SpeechModel },
	},
	{
		key: "ollama.base_url", typ: kString, env: "AIASSIST_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "AIASSIST_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "files.backend", typ: kString, env: "AIASSIST_FILES_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Files.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Files.Backend },
	},
	{
		key: "files.public_url", typ: kString, env: "AIASSIST_FILES_PUBLIC_URL",
		apply:   func(cfg *Config, v any) { cfg.Files.PublicURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Files.PublicURL },
	},
	{
		key: "files.minio_endpoint", typ: kString, env: "AIASSIST_FILES_MINIO_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Files.MinioEndpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Files.MinioEndpoint },
	},
	{
		key: "files.minio_access_key", typ: kString, env: "AIASSIST_FILES_MINIO_ACCESS_KEY",
		apply:   func(cfg *Config, v any) { cfg.Files.MinioAccessKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Files.MinioAccessKey },
	},
	{
		key: "files.minio_secret_key", typ: kString, env: "AIASSIST_FILES_MINIO_SECRET_KEY",
		secret: true, account: AccountMinioSecret,
		apply:   func(cfg *Config, v any) { cfg.Files.MinioSecretKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Files.MinioSecretKey },
	},
	{
		key: "files.minio_bucket", typ: kString, env: "AIASSIST_FILES_MINIO_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Files.MinioBucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Files.MinioBucket },
	},
	{
		key: "files.minio_use_ssl", typ: kBool, env: "AIASSIST_FILES_MINIO_USE_SSL",
		apply:   func(cfg *Config, v any) { cfg.Files.MinioUseSSL = v.(bool) },
		extract: func(cfg Config) any { return cfg.Files.MinioUseSSL },
	},
	{
		key: "events.nats_url", typ: kString, env: "AIASSIST_EVENTS_NATS_URL",
		apply:   func(cfg *Config, v any) { cfg.Events.NATSURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Events.NATSURL },
	},
	{
		key: "worker.count", typ: kInt, env: "AIASSIST_WORKER_COUNT",
		apply:   func(cfg *Config, v any) { cfg.Worker.Count = v.(int) },
		extract: func(cfg Config) any { return cfg.Worker.Count },
	},
	{
		key: "worker.poll_interval", typ: kDuration, env: "AIASSIST_WORKER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Worker.PollInterval },
	},
	{
		key: "wordlist.max_word_len", typ: kInt, env: "AIASSIST_WORDLIST_MAX_WORD_LEN",
		apply:   func(cfg *Config, v any) { cfg.Wordlist.MaxWordLen = v.(int) },
		extract: func(cfg Config) any { return cfg.Wordlist.MaxWordLen },
	},
	{
		key: "wordlist.max_value_len", typ: kInt, env: "AIASSIST_WORDLIST_MAX_VALUE_LEN",
		apply:   func(cfg *Config, v any) { cfg.Wordlist.MaxValueLen = v.(int) },
		extract: func(cfg Config) any { return cfg.Wordlist.MaxValueLen },
	},
}

func findSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// parse converts raw into the Go type of s.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}
		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			slog.Warn("could not parse config value, using default", "key", s.key, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			slog.Warn("could not parse env var, using default", "env", s.env, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}
