package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hearthd/hearth/internal/store"
)

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID   string `json:"message_id"`
		Direction   string `json:"direction"`
		Channel     string `json:"channel"`
		ContentKind string `json:"content_kind"`
		Body        string `json:"body"`
		MediaRef    string `json:"media_ref"`
		TS          int64  `json:"ts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}

	m := &store.Message{
		MessageID:   req.MessageID,
		Direction:   req.Direction,
		Channel:     req.Channel,
		ContentKind: req.ContentKind,
		Body:        req.Body,
		MediaRef:    req.MediaRef,
		TS:          req.TS,
	}
	if err := s.db.AppendMessage(m); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message_id": m.MessageID, "ts": m.TS})
}

func (s *Server) handleRecentMessages(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "limit", 50)
	msgs, err := s.db.RecentMessages(n, r.URL.Query().Get("kind"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleMarkProcessed(w http.ResponseWriter, r *http.Request) {
	if err := s.db.MarkProcessed(chi.URLParam(r, "messageID")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMarkEscalated(w http.ResponseWriter, r *http.Request) {
	if err := s.db.MarkEscalated(chi.URLParam(r, "messageID")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpsertFact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category   string  `json:"category"`
		Key        string  `json:"key"`
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
		Source     string  `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	f, err := s.db.UpsertFact(req.Category, req.Key, req.Value, req.Confidence, req.Source)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request) {
	min := 0.0
	if v := r.URL.Query().Get("min_confidence"); v != "" {
		min, _ = strconv.ParseFloat(v, 64)
	}
	facts, err := s.db.ListFacts(min)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"facts": facts})
}

func (s *Server) handleGetFact(w http.ResponseWriter, r *http.Request) {
	f, err := s.db.GetFact(chi.URLParam(r, "category"), chi.URLParam(r, "key"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if f == nil {
		writeError(w, http.StatusNotFound, "fact not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleVerifyFact(w http.ResponseWriter, r *http.Request) {
	if err := s.db.VerifyFact(chi.URLParam(r, "category"), chi.URLParam(r, "key")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (s *Server) handleEnqueueTopic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TopicType     string `json:"topic_type"`
		Title         string `json:"title"`
		Content       string `json:"content"`
		SourceEventID string `json:"source_event_id"`
		Priority      int    `json:"priority"`
		ExpiresAt     int64  `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	topic := &store.PendingTopic{
		TopicType:     req.TopicType,
		Title:         req.Title,
		Content:       req.Content,
		SourceEventID: req.SourceEventID,
		Priority:      req.Priority,
		ExpiresAt:     req.ExpiresAt,
	}
	if err := s.db.EnqueueTopic(topic, s.topicPolicy()); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, topic)
}

func (s *Server) handleDequeueTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.db.DequeuePending(queryInt(r, "limit", 10))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (s *Server) handleTopicMentioned(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "topicID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid topic id")
		return
	}
	if err := s.db.MarkTopicMentioned(id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "mentioned"})
}

func (s *Server) handleTopicDismiss(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "topicID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid topic id")
		return
	}
	if err := s.db.DismissTopic(id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

func (s *Server) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID      string `json:"event_id"`
		Source       string `json:"source"`
		EventType    string `json:"event_type"`
		Significance string `json:"significance"`
		Title        string `json:"title"`
		Description  string `json:"description"`
		Data         string `json:"data"`
		OccurredAt   int64  `json:"occurred_at"`
		ExpiresAt    *int64 `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.EventID == "" {
		req.EventID = uuid.NewString()
	}

	e := &store.Event{
		EventID:      req.EventID,
		Source:       req.Source,
		EventType:    req.EventType,
		Significance: req.Significance,
		Title:        req.Title,
		Description:  req.Description,
		Data:         req.Data,
		OccurredAt:   req.OccurredAt,
		ExpiresAt:    req.ExpiresAt,
	}
	if err := s.db.RecordEvent(e); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"event_id": e.EventID})
}

func (s *Server) handleUnmentionedEvents(w http.ResponseWriter, r *http.Request) {
	since := int64(0)
	if v := r.URL.Query().Get("since"); v != "" {
		since, _ = strconv.ParseInt(v, 10, 64)
	}
	events, err := s.db.UnmentionedEvents(r.URL.Query().Get("significance"), since, queryInt(r, "limit", 50))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleEventMentioned(w http.ResponseWriter, r *http.Request) {
	if err := s.db.MarkEventMentioned(chi.URLParam(r, "eventID")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "mentioned"})
}

func (s *Server) handleEventAck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.AcknowledgeEvent(chi.URLParam(r, "eventID")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

func (s *Server) handleDeviceReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID   string `json:"device_id"`
		DeviceType string `json:"device_type"`
		Location   string `json:"location"`
		State      string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	state, status, err := s.engine.ReportDevice(req.DeviceID, req.DeviceType, req.Location, req.State, time.Now().UnixMilli())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":   state.DeviceID,
		"state":       state.CurrentState,
		"status":      status,
		"transitions": state.TransitionsThisHour,
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.db.ListDeviceStates()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (s *Server) handleShouldAlert(w http.ResponseWriter, r *http.Request) {
	fire, err := s.engine.ShouldAlert(chi.URLParam(r, "deviceID"), time.Now().UnixMilli())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"alert": fire})
}

func (s *Server) handleDeviceAck(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.AcknowledgeDevice(chi.URLParam(r, "deviceID"), time.Now().UnixMilli()); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

func (s *Server) handleRecentSummaries(w http.ResponseWriter, r *http.Request) {
	summaryType := r.URL.Query().Get("type")
	if summaryType == "" {
		summaryType = "daily"
	}
	summaries, err := s.db.RecentSummaries(summaryType, queryInt(r, "limit", 10))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": summaries})
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	summaryType := r.URL.Query().Get("type")
	if summaryType == "" {
		summaryType = "daily"
	}
	summary, err := s.engine.Consolidate(r.Context(), summaryType, time.Now().UnixMilli())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if summary == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "nothing to consolidate"})
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	var opts store.PurgeOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := s.db.Purge(opts)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) topicPolicy() store.TopicPolicy {
	return store.TopicPolicy{
		MaxPending:     s.cfg.Topics.MaxPending,
		MaxHorizonDays: s.cfg.Topics.MaxHorizonDays,
		TerminalTTLHrs: s.cfg.Topics.TerminalTTLHrs,
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
