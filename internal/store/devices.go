package store

import (
	"database/sql"
	"fmt"
	"time"
)

// DeviceState is the single tracked row for a monitored device. Alert and
// flap bookkeeping reset when the state changes.
type DeviceState struct {
	ID                     int64
	DeviceID               string
	DeviceType             string
	Location               string
	CurrentState           string
	StateChangedAt         int64
	AlertsSentThisState    int
	LastAlertAt            *int64
	Acknowledged           bool
	AcknowledgedAt         *int64
	TransitionsThisHour    int
	HourWindowStart        int64
	MalfunctionWarningSent bool
	UpdatedAt              int64
}

const hourMs = int64(time.Hour / time.Millisecond)

// ReportDeviceState records an observed device state. An unchanged state is
// a no-op beyond touching updated_at. A changed state counts a transition
// against the rolling hour window and resets the alert bookkeeping, all in
// one transaction. Returns the row as stored and whether the state changed.
func (db *DB) ReportDeviceState(deviceID, deviceType, location, state string, now int64) (*DeviceState, bool, error) {
	if deviceID == "" || state == "" {
		return nil, false, fmt.Errorf("%w: device_id and state required", ErrConstraintViolation)
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("begin device report: %w", err)
	}
	defer tx.Rollback()

	prev, err := scanDeviceState(tx.QueryRow(deviceStateQuery+" WHERE device_id = ?", deviceID))
	if err != nil && err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("load device %s: %w", deviceID, err)
	}

	if prev == nil {
		// First sighting of this device; not counted as a transition.
		result, err := tx.Exec(`
			INSERT INTO device_states (device_id, device_type, location, current_state, state_changed_at,
				alerts_sent_this_state, acknowledged, transitions_this_hour, hour_window_start, malfunction_warning_sent, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, 0, 0, ?, 0, ?)
		`, deviceID, deviceType, location, state, now, now, now)
		if err != nil {
			return nil, false, fmt.Errorf("insert device %s: %w", deviceID, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit device report: %w", err)
		}
		id, _ := result.LastInsertId()
		return &DeviceState{
			ID: id, DeviceID: deviceID, DeviceType: deviceType, Location: location,
			CurrentState: state, StateChangedAt: now, HourWindowStart: now, UpdatedAt: now,
		}, true, nil
	}

	if prev.CurrentState == state {
		if _, err := tx.Exec("UPDATE device_states SET updated_at = ? WHERE device_id = ?", now, deviceID); err != nil {
			return nil, false, fmt.Errorf("touch device %s: %w", deviceID, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit device report: %w", err)
		}
		prev.UpdatedAt = now
		return prev, false, nil
	}

	transitions := prev.TransitionsThisHour + 1
	windowStart := prev.HourWindowStart
	warned := prev.MalfunctionWarningSent
	if now-windowStart >= hourMs {
		transitions = 1
		windowStart = now
		warned = false
	}

	if _, err := tx.Exec(`
		UPDATE device_states
		SET device_type = ?, location = ?, current_state = ?, state_changed_at = ?,
		    alerts_sent_this_state = 0, last_alert_at = NULL,
		    acknowledged = 0, acknowledged_at = NULL,
		    transitions_this_hour = ?, hour_window_start = ?, malfunction_warning_sent = ?,
		    updated_at = ?
		WHERE device_id = ?
	`, deviceType, location, state, now, transitions, windowStart, boolInt(warned), now, deviceID); err != nil {
		return nil, false, fmt.Errorf("update device %s: %w", deviceID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit device report: %w", err)
	}

	return &DeviceState{
		ID: prev.ID, DeviceID: deviceID, DeviceType: deviceType, Location: location,
		CurrentState: state, StateChangedAt: now,
		TransitionsThisHour: transitions, HourWindowStart: windowStart,
		MalfunctionWarningSent: warned, UpdatedAt: now,
	}, true, nil
}

// RecordDeviceAlert claims alert slot alertsSent+1 for the device's current
// state. The update is a compare-and-set on the counter so that two deciders
// working from the same snapshot cannot both claim the slot; the loser sees
// false and must not alert. Also loses to an acknowledgement that landed
// after the snapshot was read.
func (db *DB) RecordDeviceAlert(deviceID string, alertsSent int, now int64) (bool, error) {
	result, err := db.Exec(`
		UPDATE device_states
		SET alerts_sent_this_state = alerts_sent_this_state + 1, last_alert_at = ?, updated_at = ?
		WHERE device_id = ? AND alerts_sent_this_state = ? AND acknowledged = 0
	`, now, now, deviceID, alertsSent)
	if err != nil {
		return false, fmt.Errorf("record device alert: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 1 {
		return true, nil
	}

	s, err := db.GetDeviceState(deviceID)
	if err != nil {
		return false, err
	}
	if s == nil {
		return false, fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
	}
	return false, nil
}

// AcknowledgeDevice marks the current state acknowledged and stops further
// alerts for it.
func (db *DB) AcknowledgeDevice(deviceID string, now int64) error {
	result, err := db.Exec(`
		UPDATE device_states
		SET acknowledged = 1, acknowledged_at = ?, updated_at = ?
		WHERE device_id = ?
	`, now, now, deviceID)
	if err != nil {
		return fmt.Errorf("acknowledge device: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
	}
	return nil
}

// MarkMalfunctionWarned records that the once-per-window malfunction
// warning for a flapping device has been sent.
func (db *DB) MarkMalfunctionWarned(deviceID string, now int64) error {
	result, err := db.Exec(`
		UPDATE device_states SET malfunction_warning_sent = 1, updated_at = ? WHERE device_id = ?
	`, now, deviceID)
	if err != nil {
		return fmt.Errorf("mark malfunction warned: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: device %s", ErrNotFound, deviceID)
	}
	return nil
}

// GetDeviceState returns the tracked row for a device, or nil if the device
// has never reported.
func (db *DB) GetDeviceState(deviceID string) (*DeviceState, error) {
	s, err := scanDeviceState(db.QueryRow(deviceStateQuery+" WHERE device_id = ?", deviceID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get device state: %w", err)
	}
	return s, nil
}

// ListDeviceStates returns all tracked devices ordered by device id.
func (db *DB) ListDeviceStates() ([]DeviceState, error) {
	rows, err := db.Query(deviceStateQuery + " ORDER BY device_id ASC")
	if err != nil {
		return nil, fmt.Errorf("list device states: %w", err)
	}
	defer rows.Close()

	var states []DeviceState
	for rows.Next() {
		s, err := scanDeviceState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device state: %w", err)
		}
		states = append(states, *s)
	}
	return states, rows.Err()
}

const deviceStateQuery = `
	SELECT id, device_id, device_type, location, current_state, state_changed_at,
	       alerts_sent_this_state, last_alert_at, acknowledged, acknowledged_at,
	       transitions_this_hour, hour_window_start, malfunction_warning_sent, updated_at
	FROM device_states`

func scanDeviceState(row rowScanner) (*DeviceState, error) {
	var s DeviceState
	var location sql.NullString
	var lastAlert, ackedAt sql.NullInt64
	var acked, warned int
	err := row.Scan(&s.ID, &s.DeviceID, &s.DeviceType, &location, &s.CurrentState, &s.StateChangedAt,
		&s.AlertsSentThisState, &lastAlert, &acked, &ackedAt,
		&s.TransitionsThisHour, &s.HourWindowStart, &warned, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Location = location.String
	s.Acknowledged = acked != 0
	s.MalfunctionWarningSent = warned != 0
	if lastAlert.Valid {
		s.LastAlertAt = &lastAlert.Int64
	}
	if ackedAt.Valid {
		s.AcknowledgedAt = &ackedAt.Int64
	}
	return &s, nil
}
