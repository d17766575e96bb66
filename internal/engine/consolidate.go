package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hearthd/hearth/internal/llm"
	"github.com/hearthd/hearth/internal/store"
)

// summaryResult is the JSON shape the consolidation prompt asks for.
type summaryResult struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Topics    []string `json:"topics"`
}

// Consolidate summarizes everything since the last summary of the given
// type into a new validated summary. The LLM call runs with no store
// transaction held. Returns nil with no error when the period is empty.
func (e *Engine) Consolidate(ctx context.Context, summaryType string, now int64) (*store.ContextSummary, error) {
	start, err := e.DB.LastPeriodEnd(summaryType)
	if err != nil {
		return nil, err
	}

	msgs, err := e.DB.MessagesBetween(start, now)
	if err != nil {
		return nil, err
	}
	events, err := e.DB.EventsBetween(start, now)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 && len(events) == 0 {
		return nil, nil
	}

	transcript := buildTranscript(msgs, events)
	resp, err := e.LLM.Complete(ctx, llm.SummaryPrompt(summaryType, transcript))
	if err != nil {
		return nil, fmt.Errorf("consolidate %s: %w", summaryType, err)
	}

	result, err := parseSummaryResult(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("consolidate %s: %w", summaryType, err)
	}

	clean, warnings, err := e.ValidateSummary(result.Summary)
	if err != nil {
		return nil, fmt.Errorf("consolidate %s: %w", summaryType, err)
	}

	keyPoints, _ := json.Marshal(result.KeyPoints)
	topics, _ := json.Marshal(result.Topics)
	summary := &store.ContextSummary{
		SummaryType:  summaryType,
		PeriodStart:  start,
		PeriodEnd:    now,
		Summary:      clean,
		KeyPoints:    string(keyPoints),
		Topics:       string(topics),
		Validated:    true,
		Warnings:     strings.Join(warnings, "; "),
		MessageCount: len(msgs),
		EventCount:   len(events),
	}
	if err := e.DB.InsertSummary(summary); err != nil {
		return nil, err
	}

	log.Info().
		Str("type", summaryType).
		Int("messages", len(msgs)).
		Int("events", len(events)).
		Strs("warnings", warnings).
		Msg("consolidated summary")
	return summary, nil
}

// buildTranscript renders messages and events into one chronological text
// block for the consolidation prompt.
func buildTranscript(msgs []store.Message, events []store.Event) string {
	type line struct {
		ts   int64
		text string
	}
	lines := make([]line, 0, len(msgs)+len(events))

	for _, m := range msgs {
		who := "user"
		if m.Direction == "outbound" {
			who = "assistant"
		}
		body := m.Body
		if body == "" && m.ContentKind != "text" {
			body = "[" + m.ContentKind + "]"
		}
		lines = append(lines, line{m.TS, fmt.Sprintf("[%s] %s: %s", stamp(m.TS), who, body)})
	}
	for _, ev := range events {
		text := fmt.Sprintf("[%s] event (%s/%s): %s", stamp(ev.OccurredAt), ev.Source, ev.Significance, ev.Title)
		if ev.Description != "" {
			text += ": " + ev.Description
		}
		lines = append(lines, line{ev.OccurredAt, text})
	}

	// Both inputs arrive sorted; a single merge pass keeps them that way.
	for i := 1; i < len(lines); i++ {
		for j := i; j > 0 && lines[j].ts < lines[j-1].ts; j-- {
			lines[j], lines[j-1] = lines[j-1], lines[j]
		}
	}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l.text)
		b.WriteByte('\n')
	}
	return b.String()
}

func stamp(ms int64) string {
	return time.UnixMilli(ms).Format("Jan 2 15:04")
}

// parseSummaryResult decodes the model's JSON reply, tolerating prose
// around the object.
func parseSummaryResult(content string) (*summaryResult, error) {
	startIdx := strings.Index(content, "{")
	endIdx := strings.LastIndex(content, "}")
	if startIdx < 0 || endIdx <= startIdx {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var result summaryResult
	if err := json.Unmarshal([]byte(content[startIdx:endIdx+1]), &result); err != nil {
		return nil, fmt.Errorf("decode summary response: %w", err)
	}
	return &result, nil
}
