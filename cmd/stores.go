package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/leads/internal/ai/gemini"
	"github.com/spigell/leads/internal/cache"
	"github.com/spigell/leads/internal/logger"
	"github.com/spigell/leads/internal/secrets"
)

// openCacheStore builds the configured cache backend. The returned func releases
// backend connections and must be called after the cache is closed.
func openCacheStore(ctx context.Context, cfg *CacheConfig) (cache.Store, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", backendFile:
		return cache.NewFileStore(cfg.Path), func() {}, nil
	case backendRedis:
		if cfg.RedisURL == "" {
			return nil, nil, fmt.Errorf("cache.redis-url is required for the redis backend")
		}
		client, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRedisStore(client, cfg.Namespace), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

func cacheOptions(cfg *CacheConfig, l *zap.Logger) cache.Options {
	return cache.Options{TTL: cfg.TTL, Logger: l.Named("cache")}
}

func newAnalyzer(ctx context.Context, cfg *AIConfig, l *zap.Logger) (*gemini.Analyzer, error) {
	if cfg == nil {
		cfg = &AIConfig{}
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	if cfg.Gemini == nil {
		cfg.Gemini = &GeminiConfig{}
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (or set ai.gemini.api-key-file / GEMINI_API_KEY_FILE)", err)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model)
	if err != nil {
		return nil, err
	}

	analyzerLogger := logger.WithAnalyzerFields(l.Named("analyzer"), "gemini", generator.Model())

	return gemini.NewAnalyzer(generator, cfg.Gemini.MaxLogLength, analyzerLogger), nil
}
