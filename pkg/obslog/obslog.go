// Package obslog is the append-only store of Observation records: the ground
// truth of everything the agent did. Records are immutable once appended;
// corrections are new Observations referencing the corrected id.
package obslog

import (
	"context"
	"database/sql"
	"encoding/json"
	"iter"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/introspectai/learnloop/pkg/core"
	"github.com/introspectai/learnloop/pkg/errors"
)

// Log is a SQLite-backed observation log. Append is durable before it
// returns; there are no update or delete operations.
type Log struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string

	initialized sync.Once
}

// Open creates or opens an observation log at path. ":memory:" yields an
// ephemeral log for tests.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.StorageWriteFailed, "failed to open observation log"),
			errors.Fields{"path": path},
		)
	}

	l := &Log{
		db:   db,
		path: path,
	}
	if err := l.ensureInitialized(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Log) ensureInitialized() error {
	var initErr error
	l.initialized.Do(func() {
		// WAL keeps concurrent readers off the writer's back.
		if _, err := l.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			initErr = errors.Wrap(err, errors.StorageWriteFailed, "failed to enable WAL mode")
			return
		}

		query := `
        CREATE TABLE IF NOT EXISTS observations (
            id TEXT PRIMARY KEY,
            task_id TEXT NOT NULL,
            step_index INTEGER NOT NULL,
            timestamp TEXT NOT NULL,
            plan_text TEXT,
            tool_call TEXT,
            tool_result TEXT,
            success INTEGER NOT NULL,
            duration_ms INTEGER NOT NULL,
            diff_size INTEGER NOT NULL,
            corrects_id TEXT
        );

        CREATE UNIQUE INDEX IF NOT EXISTS idx_observations_task_step
        ON observations(task_id, step_index);

        CREATE INDEX IF NOT EXISTS idx_observations_timestamp
        ON observations(timestamp);
        `

		if _, err := l.db.Exec(query); err != nil {
			initErr = errors.WithFields(
				errors.Wrap(err, errors.StorageWriteFailed, "failed to initialize observation log"),
				errors.Fields{"path": l.path},
			)
		}
	})
	return initErr
}

// Append durably stores one observation. It never overwrites: a well-formed
// observation with a fresh id always succeeds, and any storage fault surfaces
// as StorageWriteFailed.
func (l *Log) Append(ctx context.Context, obs *core.Observation) error {
	if obs == nil || obs.ID == "" || obs.TaskID == "" {
		return errors.New(errors.InvalidInput, "observation requires id and task id")
	}
	if err := l.ensureInitialized(); err != nil {
		return err
	}

	var toolCall, toolResult sql.NullString
	if obs.ToolCall != nil {
		data, err := json.Marshal(obs.ToolCall)
		if err != nil {
			return errors.Wrap(err, errors.InvalidInput, "failed to encode tool call")
		}
		toolCall = sql.NullString{String: string(data), Valid: true}
	}
	if obs.ToolResult != nil {
		data, err := json.Marshal(obs.ToolResult)
		if err != nil {
			return errors.Wrap(err, errors.InvalidInput, "failed to encode tool result")
		}
		toolResult = sql.NullString{String: string(data), Valid: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// A transaction per append guarantees the record is flushed on every
	// exit path before the caller proceeds.
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.StorageWriteFailed, "failed to begin append transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
    INSERT INTO observations
        (id, task_id, step_index, timestamp, plan_text, tool_call, tool_result,
         success, duration_ms, diff_size, corrects_id)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obs.ID,
		obs.TaskID,
		obs.StepIndex,
		obs.Timestamp.UTC().Format(time.RFC3339Nano),
		obs.PlanText,
		toolCall,
		toolResult,
		boolToInt(obs.Success),
		obs.DurationMs,
		obs.DiffSize,
		nullable(obs.CorrectsID),
	)
	if err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StorageWriteFailed, "failed to append observation"),
			errors.Fields{"observation_id": obs.ID, "task_id": obs.TaskID},
		)
	}

	if err := tx.Commit(); err != nil {
		return errors.WithFields(
			errors.Wrap(err, errors.StorageWriteFailed, "failed to commit observation"),
			errors.Fields{"observation_id": obs.ID},
		)
	}
	return nil
}

// Filter narrows an observation query. Zero values match everything.
type Filter struct {
	TaskID  string
	Since   time.Time
	Until   time.Time
	Success *bool
}

// Observations returns a lazy, restartable sequence ordered by
// (task_id, step_index) ascending. Each range re-runs the query, so the
// sequence reflects appends made since the previous pass.
func (l *Log) Observations(ctx context.Context, filter Filter) iter.Seq2[*core.Observation, error] {
	return func(yield func(*core.Observation, error) bool) {
		query := `
        SELECT id, task_id, step_index, timestamp, plan_text, tool_call,
               tool_result, success, duration_ms, diff_size, corrects_id
        FROM observations WHERE 1=1`
		var args []interface{}

		if filter.TaskID != "" {
			query += " AND task_id = ?"
			args = append(args, filter.TaskID)
		}
		if !filter.Since.IsZero() {
			query += " AND timestamp >= ?"
			args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
		}
		if !filter.Until.IsZero() {
			query += " AND timestamp < ?"
			args = append(args, filter.Until.UTC().Format(time.RFC3339Nano))
		}
		if filter.Success != nil {
			query += " AND success = ?"
			args = append(args, boolToInt(*filter.Success))
		}
		query += " ORDER BY task_id ASC, step_index ASC"

		l.mu.RLock()
		rows, err := l.db.QueryContext(ctx, query, args...)
		l.mu.RUnlock()
		if err != nil {
			yield(nil, errors.Wrap(err, errors.Unknown, "failed to query observations"))
			return
		}
		defer rows.Close()

		for rows.Next() {
			obs, err := scanObservation(rows)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(obs, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, errors.Wrap(err, errors.Unknown, "error iterating observations"))
		}
	}
}

// All collects a filtered query into a slice.
func (l *Log) All(ctx context.Context, filter Filter) ([]*core.Observation, error) {
	var out []*core.Observation
	for obs, err := range l.Observations(ctx, filter) {
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, nil
}

// Count returns the number of stored observations matching the filter.
func (l *Log) Count(ctx context.Context, filter Filter) (int, error) {
	n := 0
	for _, err := range l.Observations(ctx, filter) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// TaskIDs returns the distinct task ids present in the log, ordered.
func (l *Log) TaskIDs(ctx context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.QueryContext(ctx, "SELECT DISTINCT task_id FROM observations ORDER BY task_id")
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to list task ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "failed to scan task id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.db.Close(); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to close observation log")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanObservation(row rowScanner) (*core.Observation, error) {
	var (
		obs        core.Observation
		ts         string
		toolCall   sql.NullString
		toolResult sql.NullString
		success    int
		corrects   sql.NullString
	)
	err := row.Scan(&obs.ID, &obs.TaskID, &obs.StepIndex, &ts, &obs.PlanText,
		&toolCall, &toolResult, &success, &obs.DurationMs, &obs.DiffSize, &corrects)
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to scan observation")
	}

	obs.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.Unknown, "corrupt observation timestamp"),
			errors.Fields{"observation_id": obs.ID},
		)
	}
	obs.Success = success != 0
	if corrects.Valid {
		obs.CorrectsID = corrects.String
	}
	if toolCall.Valid {
		var call core.ToolCall
		if err := json.Unmarshal([]byte(toolCall.String), &call); err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "corrupt tool call record")
		}
		obs.ToolCall = &call
	}
	if toolResult.Valid {
		var result core.ToolResult
		if err := json.Unmarshal([]byte(toolResult.String), &result); err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "corrupt tool result record")
		}
		obs.ToolResult = &result
	}
	return &obs, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
