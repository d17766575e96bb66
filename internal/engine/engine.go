package engine

import (
	"github.com/hearthd/hearth/internal/config"
	"github.com/hearthd/hearth/internal/llm"
	"github.com/hearthd/hearth/internal/store"
)

// Engine orchestrates the memory and policy state machines on top of the
// store: device monitoring, summary consolidation, and maintenance.
type Engine struct {
	DB  *store.DB
	LLM llm.Client
	Cfg config.Config
}

// New creates a new Engine.
func New(db *store.DB, client llm.Client, cfg config.Config) *Engine {
	return &Engine{DB: db, LLM: client, Cfg: cfg}
}

func (e *Engine) decayPolicy() store.DecayPolicy {
	return store.DecayPolicy{
		InferredStalenessDays: e.Cfg.Facts.InferredStalenessDays,
		StatedStalenessDays:   e.Cfg.Facts.StatedStalenessDays,
		Step:                  e.Cfg.Facts.DecayStep,
		Floor:                 e.Cfg.Facts.ConfidenceFloor,
		DeactivateBelow:       e.Cfg.Facts.DeactivateBelow,
	}
}

func (e *Engine) topicPolicy() store.TopicPolicy {
	return store.TopicPolicy{
		MaxPending:     e.Cfg.Topics.MaxPending,
		MaxHorizonDays: e.Cfg.Topics.MaxHorizonDays,
		TerminalTTLHrs: e.Cfg.Topics.TerminalTTLHrs,
	}
}

func (e *Engine) eventRetention() store.EventRetention {
	return store.EventRetention{
		RoutineDays:     e.Cfg.Events.RoutineRetentionDays,
		SignificantDays: e.Cfg.Events.SignificantRetentionDays,
		CriticalDays:    e.Cfg.Events.CriticalRetentionDays,
	}
}
