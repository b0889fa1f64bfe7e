// Package store provides a SQLite-backed archive of finished sessions.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/voxdeck/internal/model"
	"github.com/theirongolddev/voxdeck/internal/transcript"

	_ "modernc.org/sqlite" // register sqlite driver
)

// ErrNotFound is returned when a session id is not in the archive.
var ErrNotFound = errors.New("session not found")

// Archive stores session summaries, transcripts and TTFB history.
type Archive struct {
	db *sql.DB
}

// Open opens or creates the archive database at the given path.
func Open(dbPath string) (*Archive, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating archive dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening archive db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Close closes the archive database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// SessionRow is one archived session without its transcript or history.
type SessionRow struct {
	SessionID    string
	Source       string
	StartedAt    time.Time
	EndedAt      time.Time
	DurationSecs int64
	TTFBBatches  int
	MeanTTFB     model.TTFBSnapshot
	Cumulative   model.TokenUsage
	MessageCount int
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s.String)
	return t
}

// SaveSession stores a summary, replacing any earlier copy with the same id.
func (a *Archive) SaveSession(ctx context.Context, s model.SessionSummary) error {
	if s.SessionID == "" {
		return errors.New("saving session: empty session id")
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO sessions
		(session_id, source, started_at, ended_at, duration_secs,
		 ttfb_batches, character_batches,
		 last_stt_ms, last_llm_ms, last_tts_ms,
		 mean_stt_ms, mean_llm_ms, mean_tts_ms,
		 prompt_tokens, completion_tokens, total_tokens,
		 message_count, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SessionID, s.Source, formatTime(s.StartedAt), formatTime(s.EndedAt), s.DurationSecs(),
		s.TTFBBatches, s.CharacterBatches,
		s.LastTTFB.STTMs, s.LastTTFB.LLMMs, s.LastTTFB.TTSMs,
		s.MeanTTFB.STTMs, s.MeanTTFB.LLMMs, s.MeanTTFB.TTSMs,
		s.Cumulative.Prompt, s.Cumulative.Completion, s.Cumulative.Total,
		len(s.Messages), now,
	)
	if err != nil {
		return fmt.Errorf("saving session row: %w", err)
	}

	// REPLACE does not cascade unless recursive triggers are on.
	for _, table := range []string{"messages", "ttfb_points"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE session_id = ?", s.SessionID); err != nil {
			return err
		}
	}

	for i, m := range s.Messages {
		_, err = tx.ExecContext(ctx, `INSERT INTO messages
			(session_id, seq, message_id, role, content, display, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.SessionID, i, m.ID, string(m.Role), m.Content, transcript.Normalize(m), formatTime(m.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("saving message %d: %w", i, err)
		}
	}

	for i, p := range s.History {
		_, err = tx.ExecContext(ctx, `INSERT INTO ttfb_points
			(session_id, seq, timestamp, stt_ms, llm_ms, tts_ms)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.SessionID, i, p.Timestamp, p.STTMs, p.LLMMs, p.TTSMs,
		)
		if err != nil {
			return fmt.Errorf("saving ttfb point %d: %w", i, err)
		}
	}

	return tx.Commit()
}

const sessionColumns = `session_id, source, started_at, ended_at, duration_secs,
	ttfb_batches, character_batches,
	last_stt_ms, last_llm_ms, last_tts_ms,
	mean_stt_ms, mean_llm_ms, mean_tts_ms,
	prompt_tokens, completion_tokens, total_tokens, message_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (model.SessionSummary, int, int64, error) {
	var s model.SessionSummary
	var started, ended sql.NullString
	var dur int64
	var count int
	err := row.Scan(&s.SessionID, &s.Source, &started, &ended, &dur,
		&s.TTFBBatches, &s.CharacterBatches,
		&s.LastTTFB.STTMs, &s.LastTTFB.LLMMs, &s.LastTTFB.TTSMs,
		&s.MeanTTFB.STTMs, &s.MeanTTFB.LLMMs, &s.MeanTTFB.TTSMs,
		&s.Cumulative.Prompt, &s.Cumulative.Completion, &s.Cumulative.Total, &count,
	)
	if err != nil {
		return s, 0, 0, err
	}
	s.StartedAt = parseTime(started)
	s.EndedAt = parseTime(ended)
	return s, count, dur, nil
}

// ListSessions returns the most recent sessions first. limit <= 0 means all.
func (a *Archive) ListSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	q := "SELECT " + sessionColumns + " FROM sessions ORDER BY started_at DESC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []SessionRow
	for rows.Next() {
		s, count, dur, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, SessionRow{
			SessionID:    s.SessionID,
			Source:       s.Source,
			StartedAt:    s.StartedAt,
			EndedAt:      s.EndedAt,
			DurationSecs: dur,
			TTFBBatches:  s.TTFBBatches,
			MeanTTFB:     s.MeanTTFB,
			Cumulative:   s.Cumulative,
			MessageCount: count,
		})
	}
	return out, rows.Err()
}

// LoadSession reads one session with its transcript and TTFB history.
func (a *Archive) LoadSession(ctx context.Context, id string) (model.SessionSummary, error) {
	row := a.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE session_id = ?", id)
	s, _, _, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SessionSummary{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.SessionSummary{}, err
	}

	msgRows, err := a.db.QueryContext(ctx, `SELECT message_id, role, content, created_at
		FROM messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return s, err
	}
	defer func() { _ = msgRows.Close() }()
	for msgRows.Next() {
		var m model.Message
		var role string
		var created sql.NullString
		if err := msgRows.Scan(&m.ID, &role, &m.Content, &created); err != nil {
			return s, err
		}
		m.Role = model.Role(role)
		m.CreatedAt = parseTime(created)
		m.Final = true
		s.Messages = append(s.Messages, m)
	}
	if err := msgRows.Err(); err != nil {
		return s, err
	}

	ptRows, err := a.db.QueryContext(ctx, `SELECT timestamp, stt_ms, llm_ms, tts_ms
		FROM ttfb_points WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return s, err
	}
	defer func() { _ = ptRows.Close() }()
	for ptRows.Next() {
		var p model.TTFBPoint
		if err := ptRows.Scan(&p.Timestamp, &p.STTMs, &p.LLMMs, &p.TTSMs); err != nil {
			return s, err
		}
		s.History = append(s.History, p)
	}
	return s, ptRows.Err()
}

// DisplayText returns the normalized transcript lines stored for a session.
func (a *Archive) DisplayText(ctx context.Context, id string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, "SELECT display FROM messages WHERE session_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its associated data.
func (a *Archive) DeleteSession(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// SessionCount returns the number of archived sessions.
func (a *Archive) SessionCount(ctx context.Context) (int, error) {
	var count int
	err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count)
	return count, err
}
