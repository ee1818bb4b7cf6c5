package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/kalambet/aiassist/internal/action"
	"github.com/kalambet/aiassist/internal/ai"
	"github.com/kalambet/aiassist/internal/config"
	"github.com/kalambet/aiassist/internal/events"
	"github.com/kalambet/aiassist/internal/extension"
	"github.com/kalambet/aiassist/internal/extension/book"
	"github.com/kalambet/aiassist/internal/extension/glossary"
	"github.com/kalambet/aiassist/internal/extension/quiz"
	"github.com/kalambet/aiassist/internal/extension/wordcard"
	"github.com/kalambet/aiassist/internal/filestore"
	"github.com/kalambet/aiassist/internal/storage"
	"github.com/kalambet/aiassist/internal/wordlist"
)

// app is the in-process service graph shared by start, mcp, launch and import.
type app struct {
	cfg      config.Config
	store    *storage.Store
	registry *extension.Registry
	actions  *action.Controller
	// filesDir is served at /files when media is stored locally.
	filesDir string
	closers  []func() error
}

func openApp(ctx context.Context, cfg config.Config) (*app, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a := &app{cfg: cfg, store: store, closers: []func() error{store.Close}}

	pub, err := newPublisher(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c, ok := pub.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	files, err := a.newFileStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	gen := newGenerator(ctx, cfg)
	opts := wordlist.Options{
		MaxWordLen:  cfg.Wordlist.MaxWordLen,
		MaxValueLen: cfg.Wordlist.MaxValueLen,
	}
	cards := wordcard.NewBuilder(gen, files, opts)

	a.registry = extension.NewRegistry(store)
	a.registry.MustRegister(glossary.New(store, cards, opts))
	a.registry.MustRegister(book.New(store, cards, opts))
	a.registry.MustRegister(quiz.New(store, gen))

	a.actions = action.NewController(store, action.NewJobQueue(store), a.registry, pub)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// newPublisher always logs events at debug level and also publishes them
// to NATS when events.nats_url is set.
func newPublisher(cfg config.Config) (events.Publisher, error) {
	pubs := events.Multi{events.Log(slog.Default())}
	if cfg.Events.NATSURL == "" {
		return pubs, nil
	}
	nc, err := events.NewNATSPublisher(cfg.Events.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	slog.Info("publishing action events", "nats_url", cfg.Events.NATSURL, "subject", events.SubjectActionStatus)
	return append(pubs, nc), nil
}

func (a *app) newFileStore(ctx context.Context) (filestore.Store, error) {
	cfg := a.cfg
	if cfg.Files.Backend == "minio" {
		m, err := filestore.NewMinio(ctx, filestore.MinioConfig{
			Endpoint:  cfg.Files.MinioEndpoint,
			AccessKey: cfg.Files.MinioAccessKey,
			SecretKey: cfg.Files.MinioSecretKey,
			Bucket:    cfg.Files.MinioBucket,
			UseSSL:    cfg.Files.MinioUseSSL,
			PublicURL: cfg.Files.PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to MinIO: %w", err)
		}
		return m, nil
	}

	baseURL := cfg.Files.PublicURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://127.0.0.1:%d/files", cfg.Server.Port)
	}
	local, err := filestore.NewLocal(filepath.Join(cfg.Storage.DataDir, "files"), baseURL)
	if err != nil {
		return nil, err
	}
	a.filesDir = local.Dir()
	return local, nil
}

// newGenerator picks the AI backend. With ollama, images and speech still
// use the OpenAI-compatible API when a key is configured.
func newGenerator(ctx context.Context, cfg config.Config) ai.Generator {
	hosted := ai.NewOpenAIClient(ai.OpenAIConfig{
		APIKey:      cfg.AI.APIKey,
		BaseURL:     cfg.AI.BaseURL,
		TextModel:   cfg.AI.TextModel,
		ImageModel:  cfg.AI.ImageModel,
		SpeechModel: cfg.AI.SpeechModel,
	})
	if cfg.AI.Backend != "ollama" {
		if cfg.AI.APIKey == "" {
			slog.Warn("no AI API key configured; generation requests will be rejected",
				"hint", "aiassist config set ai.api_key <key> or AIASSIST_AI_API_KEY")
		}
		return hosted
	}

	local := ai.NewOllamaClient(cfg.Ollama.BaseURL, cfg.Ollama.Model)
	if !local.IsRunning(ctx) {
		slog.Warn("ollama is not reachable; text generation will fail until it is started",
			"base_url", cfg.Ollama.BaseURL, "model", cfg.Ollama.Model)
	}
	split := ai.Split{Text: local}
	if cfg.AI.APIKey != "" {
		split.Media = hosted
	}
	return split
}
