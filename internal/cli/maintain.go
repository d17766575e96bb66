package cli

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hearthd/hearth/internal/engine"
	"github.com/hearthd/hearth/internal/llm"
	"github.com/hearthd/hearth/internal/store"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run one maintenance pass and exit",
	Long: "Runs the scheduler's jobs once, in order: nonce sweep, topic sweep,\n" +
		"event prune, fact decay, consolidation, message prune. Useful from cron\n" +
		"outside the long-running server.",
	RunE: runMaintain,
}

func runMaintain(cmd *cobra.Command, args []string) error {
	db, cfg, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	llmClient, llmErr := llm.NewClient(cfg.LLM)
	if llmErr != nil {
		llmClient = &llm.MockClient{Err: llmErr}
	}
	eng := engine.New(db, llmClient, cfg)
	now := time.Now().UnixMilli()

	if n, err := db.SweepNonces(now); err != nil {
		return err
	} else {
		log.Info().Int("removed", n).Msg("swept nonces")
	}

	if n, err := db.SweepTopics(now, store.TopicPolicy{
		MaxPending:     cfg.Topics.MaxPending,
		MaxHorizonDays: cfg.Topics.MaxHorizonDays,
		TerminalTTLHrs: cfg.Topics.TerminalTTLHrs,
	}); err != nil {
		return err
	} else {
		log.Info().Int("touched", n).Msg("swept topics")
	}

	if n, err := db.PruneEvents(now, store.EventRetention{
		RoutineDays:     cfg.Events.RoutineRetentionDays,
		SignificantDays: cfg.Events.SignificantRetentionDays,
		CriticalDays:    cfg.Events.CriticalRetentionDays,
	}); err != nil {
		return err
	} else {
		log.Info().Int("removed", n).Msg("pruned events")
	}

	decayed, deactivated, err := db.DecayFacts(now, store.DecayPolicy{
		InferredStalenessDays: cfg.Facts.InferredStalenessDays,
		StatedStalenessDays:   cfg.Facts.StatedStalenessDays,
		Step:                  cfg.Facts.DecayStep,
		Floor:                 cfg.Facts.ConfidenceFloor,
		DeactivateBelow:       cfg.Facts.DeactivateBelow,
	})
	if err != nil {
		return err
	}
	log.Info().Int("decayed", decayed).Int("deactivated", deactivated).Msg("decayed facts")

	// Consolidate before pruning so the summary covers what gets dropped.
	// When consolidation cannot run, the ledger is left alone too.
	if _, err := eng.Consolidate(context.Background(), "daily", now); err != nil {
		log.Warn().Err(err).Msg("consolidation failed, skipping message prune")
		return nil
	}

	if n, err := db.PruneMessages(cfg.Ledger.KeepMessages); err != nil {
		return err
	} else {
		log.Info().Int("removed", n).Msg("pruned messages")
	}

	return nil
}
