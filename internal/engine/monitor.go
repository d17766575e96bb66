package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hearthd/hearth/internal/store"
)

// DeviceStatus classifies a device's tracked row.
type DeviceStatus string

const (
	StatusClear          DeviceStatus = "clear"
	StatusTriggered      DeviceStatus = "triggered"
	StatusMalfunctioning DeviceStatus = "malfunctioning"
)

// ReportDevice records a device state report. Identical states dedupe to a
// no-op. When the device crosses the flap threshold the report is answered
// with a malfunction status instead of a triggered one, and the
// once-per-window warning flag is set.
func (e *Engine) ReportDevice(deviceID, deviceType, location, state string, now int64) (*store.DeviceState, DeviceStatus, error) {
	s, changed, err := e.DB.ReportDeviceState(deviceID, deviceType, location, state, now)
	if err != nil {
		return nil, "", err
	}

	status := e.deviceStatus(s, now)
	if changed {
		log.Info().
			Str("device", deviceID).
			Str("state", state).
			Str("status", string(status)).
			Int("transitions", s.TransitionsThisHour).
			Msg("device state changed")
	}

	if status == StatusMalfunctioning && !s.MalfunctionWarningSent {
		if err := e.DB.MarkMalfunctionWarned(deviceID, now); err != nil {
			return nil, "", err
		}
		s.MalfunctionWarningSent = true
		log.Warn().
			Str("device", deviceID).
			Int("transitions", s.TransitionsThisHour).
			Msg("device flapping, suppressing alerts")
	}

	return s, status, nil
}

// ShouldAlert decides whether an alert is due for a device's current state
// and, when it is, records it. At most MaxAlertsPerState alerts fire per
// state episode, spaced by the escalation ladder; acknowledged or
// malfunctioning devices never alert.
func (e *Engine) ShouldAlert(deviceID string, now int64) (bool, error) {
	s, err := e.DB.GetDeviceState(deviceID)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, fmt.Errorf("%w: device %s", store.ErrNotFound, deviceID)
	}

	if e.deviceStatus(s, now) != StatusTriggered {
		return false, nil
	}
	if s.Acknowledged {
		return false, nil
	}
	if s.AlertsSentThisState >= e.Cfg.Monitor.MaxAlertsPerState {
		return false, nil
	}

	if s.AlertsSentThisState > 0 {
		gap := e.escalationGap(s.AlertsSentThisState)
		if s.LastAlertAt == nil || now-*s.LastAlertAt < gap {
			return false, nil
		}
	}

	// Claiming the slot can fail if another decider fired or an ack
	// landed since the snapshot above; that loss means no alert.
	claimed, err := e.DB.RecordDeviceAlert(deviceID, s.AlertsSentThisState, now)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}
	log.Info().
		Str("device", deviceID).
		Str("state", s.CurrentState).
		Int("alert", s.AlertsSentThisState+1).
		Msg("device alert")
	return true, nil
}

// AcknowledgeDevice silences further alerts for the device's current state.
func (e *Engine) AcknowledgeDevice(deviceID string, now int64) error {
	return e.DB.AcknowledgeDevice(deviceID, now)
}

// DeviceStatusFor returns the status classification for a tracked device
// as of now.
func (e *Engine) DeviceStatusFor(deviceID string, now int64) (DeviceStatus, error) {
	s, err := e.DB.GetDeviceState(deviceID)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", fmt.Errorf("%w: device %s", store.ErrNotFound, deviceID)
	}
	return e.deviceStatus(s, now), nil
}

const hourMillis = int64(time.Hour / time.Millisecond)

func (e *Engine) deviceStatus(s *store.DeviceState, now int64) DeviceStatus {
	// The flap counter only speaks for its hour window. A quiet device
	// outlives the window without reporting, so the stored count goes
	// stale rather than being reset in place.
	flapping := s.TransitionsThisHour > e.Cfg.Monitor.FlapThreshold &&
		now-s.HourWindowStart < hourMillis
	if flapping {
		return StatusMalfunctioning
	}
	for _, clear := range e.Cfg.Monitor.ClearStates {
		if s.CurrentState == clear {
			return StatusClear
		}
	}
	return StatusTriggered
}

// escalationGap returns the minimum wait before alert number alertsSent+1,
// as a millisecond duration. Past the end of the ladder the last rung holds.
func (e *Engine) escalationGap(alertsSent int) int64 {
	ladder := e.Cfg.Monitor.EscalationMinutes
	if len(ladder) == 0 {
		return 0
	}
	idx := alertsSent
	if idx >= len(ladder) {
		idx = len(ladder) - 1
	}
	return int64(ladder[idx]) * int64(time.Minute/time.Millisecond)
}
