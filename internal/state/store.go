package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

// Context kinds. Each names the flow step a correlation id belongs to,
// so a handler can refuse a stale or mismatched control press.
const (
	KindReview      = "review"
	KindAssignment  = "assignment"
	KindDisposition = "disposition"
	KindFinish      = "finish"
	KindDelete      = "delete"
)

// Store persists interaction contexts and the workflow event log.
type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

// Open opens the workspace database and applies migrations.
func Open(workspace string) (*Store, error) {
	db, err := openDB(workspace)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{DB: db, Now: time.Now}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// PutContext stores (or replaces) the context behind a correlation id.
// Payload is any JSON-marshalable flow state.
func (s *Store) PutContext(ctx context.Context, correlationID, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal context payload: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO contexts(correlation_id,kind,payload_json,created_at) VALUES (?,?,?,?)
		 ON CONFLICT(correlation_id) DO UPDATE SET kind=excluded.kind, payload_json=excluded.payload_json`,
		correlationID, kind, string(data), s.now().UTC().Format(time.RFC3339))
	return err
}

// GetContext loads the context for a correlation id into out and
// returns its kind. ErrNotFound when the id is unknown or already
// consumed.
func (s *Store) GetContext(ctx context.Context, correlationID string, out any) (string, error) {
	var kind, payload string
	err := s.DB.QueryRowContext(ctx,
		`SELECT kind, payload_json FROM contexts WHERE correlation_id=?`, correlationID).
		Scan(&kind, &payload)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if out != nil {
		if err := json.Unmarshal([]byte(payload), out); err != nil {
			return "", fmt.Errorf("unmarshal context payload: %w", err)
		}
	}
	return kind, nil
}

// DeleteContext consumes a correlation id. Deleting an unknown id is
// not an error, a control can race its own cleanup.
func (s *Store) DeleteContext(ctx context.Context, correlationID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM contexts WHERE correlation_id=?`, correlationID)
	return err
}

// Event is one workflow audit record.
type Event struct {
	ID         int64
	TS         string
	Type       string
	CaseNumber string
	ActorID    string
	Payload    map[string]any
}

// AppendEvent writes one audit record. Failures here are reported by
// the caller's logger, never allowed to fail the workflow itself.
func (s *Store) AppendEvent(ctx context.Context, evtType, caseNumber, actorID string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO events(ts,type,case_number,actor_id,payload_json) VALUES (?,?,?,?,?)`,
		s.now().UTC().Format(time.RFC3339), evtType, nullable(caseNumber), nullable(actorID), string(data))
	return err
}

// RecentEvents returns the newest records first, at most limit.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id,ts,type,COALESCE(case_number,''),COALESCE(actor_id,''),payload_json
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		var payload string
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.CaseNumber, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
