package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hearthd/hearth/internal/engine"
	"github.com/hearthd/hearth/internal/llm"
	"github.com/hearthd/hearth/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server and maintenance scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	db, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Warn().Err(err).Msg("LLM not configured, consolidation will fail until it is")
		llmClient = &llm.MockClient{Err: fmt.Errorf("llm not configured")}
	} else {
		log.Info().Str("provider", cfg.LLM.Provider).Str("model", cfg.LLM.Model).Msg("llm ready")
	}

	eng := engine.New(db, llmClient, cfg)
	sched, err := engine.NewScheduler(eng)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}
	sched.Start(context.Background())
	defer sched.Stop()

	srv := server.New(db, eng, cfg, VersionString())
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: srv,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.ListenAddr()).Str("db", db.Path).Msg("hearth serving")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			os.Exit(1)
		}
	}()

	<-done
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}
