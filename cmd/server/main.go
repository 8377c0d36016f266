package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/evermind-ai/evermind/pkg/ai"
	"github.com/evermind-ai/evermind/pkg/assistant"
	"github.com/evermind-ai/evermind/pkg/bootstrap"
	"github.com/evermind-ai/evermind/pkg/config"
	"github.com/evermind-ai/evermind/pkg/db"
	"github.com/evermind-ai/evermind/pkg/server"
)

func main() {
	logger := bootstrap.NewLogger()

	envs, err := config.LoadConfig(true)
	if err != nil {
		logger.Error("Unable to load config", "error", err)
		panic(errors.Wrap(err, "failed to load config"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	natsServer, err := bootstrap.StartEmbeddedNATSServer(logger)
	if err != nil {
		logger.Error("Unable to start NATS server", "error", err)
		panic(errors.Wrap(err, "failed to start NATS server"))
	}
	defer natsServer.Shutdown()

	nc, err := bootstrap.NewNatsClient(envs.NatsURL)
	if err != nil {
		logger.Error("Unable to connect to NATS", "error", err)
		panic(errors.Wrap(err, "failed to connect to NATS"))
	}
	defer nc.Close()

	store, err := db.NewStore(ctx, envs.DBPath, logger)
	if err != nil {
		logger.Error("Unable to open store", "error", err)
		panic(errors.Wrap(err, "failed to open store"))
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing store", "error", err)
		}
	}()

	aiService, err := ai.NewOpenAIService(
		logger,
		envs.CompletionsAPIKey,
		envs.CompletionsAPIURL,
		envs.CompletionsModel,
		envs.SearchModel,
	)
	if err != nil {
		logger.Error("Unable to build model gateway", "error", err)
		panic(errors.Wrap(err, "failed to build model gateway"))
	}

	assistantService := assistant.NewService(logger, aiService, store, nc, assistant.Options{
		Budget: assistant.Budget{
			MaxMemoryChars:  envs.MaxMemoryChars,
			MaxHistoryChars: envs.MaxHistoryChars,
			MaxTotalChars:   envs.MaxTotalChars,
		},
		MaxActiveEntries: envs.MaxActiveMemoryEntries,
		HistoryLookback:  envs.HistoryTurnLookback,
		EvictOverCap:     envs.EvictOverCap,
	})

	router := server.New(logger, assistantService).Router()

	// Serve in a goroutine so it doesn't block signal handling.
	go func() {
		logger.Info("Starting HTTP server", "address", "http://localhost:"+envs.HTTPPort)
		err := http.ListenAndServe(":"+envs.HTTPPort, router)
		if err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			panic(errors.Wrap(err, "unable to start server"))
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	<-signalChan
	logger.Info("Server shutting down...")
}
