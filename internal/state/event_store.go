// ./internal/state/event_store.go
package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/events"
	"github.com/Jackson-io/Jackson-Liquidity-Pool/internal/logger"
)

var storeLogger = logger.GetForComponent("event_store")

// StoredEvent is one row of the append-only event journal.
type StoredEvent struct {
	EventID   int64           `json:"event_id"`
	Kind      string          `json:"kind"`
	EmittedAt time.Time       `json:"emitted_at"`
	Payload   json.RawMessage `json:"payload"`
}

// SaveEvent appends one event record to the journal.
func SaveEvent(kind events.Kind, event events.Event) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	query := `
		INSERT INTO vault_events (kind, emitted_at, payload)
		VALUES ($1, $2, $3)
		RETURNING event_id;
	`

	var eventID int64
	err = DB.QueryRow(query, string(kind), time.Now().UTC(), payload).Scan(&eventID)
	if err != nil {
		return 0, fmt.Errorf("failed to save event: %w", err)
	}

	return eventID, nil
}

// GetRecentEvents returns the newest events, newest first.
func GetRecentEvents(limit int) ([]StoredEvent, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT event_id, kind, emitted_at, payload
		FROM vault_events
		ORDER BY emitted_at DESC, event_id DESC
		LIMIT $1;
	`

	rows, err := DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	out := make([]StoredEvent, 0, limit)
	for rows.Next() {
		var ev StoredEvent
		if err := rows.Scan(&ev.EventID, &ev.Kind, &ev.EmittedAt, &ev.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event row iteration failed: %w", err)
	}

	return out, nil
}

// GetRecentEventsByKind returns the newest events of one kind, newest first.
func GetRecentEventsByKind(kind string, limit int) ([]StoredEvent, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT event_id, kind, emitted_at, payload
		FROM vault_events
		WHERE kind = $1
		ORDER BY emitted_at DESC, event_id DESC
		LIMIT $2;
	`

	rows, err := DB.Query(query, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events by kind: %w", err)
	}
	defer rows.Close()

	out := make([]StoredEvent, 0, limit)
	for rows.Next() {
		var ev StoredEvent
		if err := rows.Scan(&ev.EventID, &ev.Kind, &ev.EmittedAt, &ev.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event row iteration failed: %w", err)
	}

	return out, nil
}

// Sink adapts the journal to the events.Sink interface. Emission must never
// fail the emitting operation, so persistence errors are logged and dropped.
type Sink struct{}

// Emit appends the event to the journal, best effort.
func (Sink) Emit(e events.Event) {
	if _, err := SaveEvent(e.Kind(), e); err != nil {
		storeLogger.Error().Err(err).Str("kind", string(e.Kind())).Msg("Failed to persist event")
	}
}
