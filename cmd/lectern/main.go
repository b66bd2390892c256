package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	dgclient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/jaehoon-kim/lectern/internal/config"
	"github.com/jaehoon-kim/lectern/internal/feedback"
	"github.com/jaehoon-kim/lectern/internal/llm"
	"github.com/jaehoon-kim/lectern/internal/media"
	"github.com/jaehoon-kim/lectern/internal/server"
	"github.com/jaehoon-kim/lectern/internal/session"
	"github.com/jaehoon-kim/lectern/internal/transcribe"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "lectern",
	})

	configPath := flag.String("config", configPathDefault(), "path to YAML config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("config load failed", "err", err)
	}
	for _, warning := range warnings {
		logger.Warn(warning)
	}

	dgclient.Init(dgclient.InitLib{LogLevel: dgclient.LogLevelDefault})

	resolver := media.NewResolver(cfg.YTDLPPath)

	sessions := func(sink session.Sink) server.Session {
		source := media.NewSource(media.SourceConfig{
			FFmpegPath:     cfg.FFmpegPath,
			ChunkDuration:  cfg.ParsedChunkDuration(),
			ChunkOverlap:   cfg.ChunkOverlap,
			StartupTimeout: cfg.ParsedStartupTimeout(),
			Logger:         logger,
		}, resolver)

		bridge := transcribe.NewBridge(transcribe.BridgeConfig{
			APIKey:           cfg.DeepgramAPIKey,
			Language:         cfg.Language,
			ReconnectTimeout: cfg.ParsedReconnectTimeout(),
			Logger:           logger,
		})

		engine := feedback.New(feedback.Config{
			FeedbackModel:   cfg.FeedbackModel,
			SummaryModel:    cfg.SummaryModel,
			SummaryMaxChars: cfg.SummaryMaxChars,
			Logger:          logger,
		}, func(provider, model string) (llm.Client, error) {
			return llm.NewClient(provider, apiKeyFor(cfg, provider), model)
		})

		return session.New(session.Config{
			FeedbackThreshold: cfg.FeedbackThreshold,
			FeedbackInterval:  cfg.ParsedFeedbackInterval(),
			FeedbackMinChars:  cfg.FeedbackMinChars,
			ShutdownTimeout:   cfg.ParsedShutdownTimeout(),
			Logger:            logger,
		}, source, bridge, engine, sink)
	}

	handler := server.Handler(server.Deps{
		Sessions: sessions,
		Resolver: resolver,
		Logger:   logger,
	})

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", "err", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ParsedShutdownTimeout())
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", "err", err)
	}
}

func apiKeyFor(cfg config.Config, provider string) string {
	switch provider {
	case "openai":
		return cfg.OpenAIAPIKey
	case "gemini":
		return cfg.GeminiAPIKey
	case "anthropic":
		return cfg.AnthropicAPIKey
	default:
		return ""
	}
}

func configPathDefault() string {
	if v := os.Getenv(config.EnvPrefix + "CONFIG"); v != "" {
		return v
	}
	return "lectern.yaml"
}
