//go:build cgo

package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore implements Store on KuzuDB. Runs and deliverables are nodes
// joined by PRODUCED edges; FOLLOWS edges record the chain order between
// deliverables of one run.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileStore creates a KuzuStore backed by a KuzuDB directory at
// dbPath. The parent directory is created if missing.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

// OpenFileStore opens the persistent history store at path.
func OpenFileStore(path string) (Store, error) {
	return NewKuzuFileStore(path)
}

func openKuzu(path string) (*KuzuStore, error) {
	db, err := kuzu.OpenDatabase(path, kuzu.DefaultSystemConfig())
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// Node tables must precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Run(
		id STRING,
		started_at INT64,
		model STRING,
		mode STRING,
		elapsed_ns INT64,
		total_tokens INT64,
		success_count INT64,
		error_count INT64,
		init_error STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Deliverable(
		id STRING,
		run_id STRING,
		kind STRING,
		ordinal INT64,
		success BOOLEAN,
		error_message STRING,
		attempts INT64,
		tokens INT64,
		elapsed_ns INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS PRODUCED(FROM Run TO Deliverable)`,
	`CREATE REL TABLE IF NOT EXISTS FOLLOWS(FROM Deliverable TO Deliverable)`,
}

// InitSchema creates all node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// RecordRun inserts the run, its deliverables and their edges in one
// transaction.
func (s *KuzuStore) RecordRun(ctx context.Context, run RunRecord) error {
	if _, err := s.GetRun(ctx, run.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	return s.inTx(func() error {
		return s.insertRun(run)
	})
}

// insertRun creates the run, its deliverables and their edges.
func (s *KuzuStore) insertRun(run RunRecord) error {
	err := s.exec(
		`CREATE (r:Run {
			id: $id,
			started_at: $started,
			model: $model,
			mode: $mode,
			elapsed_ns: $elapsed,
			total_tokens: $tokens,
			success_count: $ok,
			error_count: $failed,
			init_error: $init
		})`,
		map[string]any{
			"id":      run.ID,
			"started": run.StartedAt.UnixNano(),
			"model":   run.Model,
			"mode":    run.Mode,
			"elapsed": int64(run.Elapsed),
			"tokens":  int64(run.TotalTokens),
			"ok":      int64(run.SuccessCount),
			"failed":  int64(run.ErrorCount),
			"init":    run.InitError,
		},
	)
	if err != nil {
		return err
	}

	prev := ""
	for _, d := range run.Deliverables {
		id := deliverableID(run.ID, d.Position)
		err := s.exec(
			`CREATE (d:Deliverable {
				id: $id,
				run_id: $run,
				kind: $kind,
				ordinal: $pos,
				success: $success,
				error_message: $err,
				attempts: $attempts,
				tokens: $tokens,
				elapsed_ns: $elapsed
			})`,
			map[string]any{
				"id":       id,
				"run":      run.ID,
				"kind":     d.Kind,
				"pos":      int64(d.Position),
				"success":  d.Success,
				"err":      d.Error,
				"attempts": int64(d.Attempts),
				"tokens":   int64(d.Tokens),
				"elapsed":  int64(d.Elapsed),
			},
		)
		if err != nil {
			return err
		}
		if err := s.exec(
			`MATCH (r:Run {id: $src}), (d:Deliverable {id: $dst})
			 CREATE (r)-[:PRODUCED]->(d)`,
			map[string]any{"src": run.ID, "dst": id},
		); err != nil {
			return err
		}
		if prev != "" {
			if err := s.exec(
				`MATCH (a:Deliverable {id: $src}), (b:Deliverable {id: $dst})
				 CREATE (b)-[:FOLLOWS]->(a)`,
				map[string]any{"src": prev, "dst": id},
			); err != nil {
				return err
			}
		}
		prev = id
	}
	return nil
}

// inTx runs fn inside one transaction, rolling back when fn fails.
func (s *KuzuStore) inTx(fn func() error) error {
	if err := s.statement("BEGIN TRANSACTION"); err != nil {
		return fmt.Errorf("kuzu: begin: %w", err)
	}
	if err := fn(); err != nil {
		// A failed statement may already have aborted the transaction.
		_ = s.statement("ROLLBACK")
		return err
	}
	if err := s.statement("COMMIT"); err != nil {
		_ = s.statement("ROLLBACK")
		return fmt.Errorf("kuzu: commit: %w", err)
	}
	return nil
}

// statement runs an unparameterized statement and discards its result.
func (s *KuzuStore) statement(cypher string) error {
	res, err := s.conn.Query(cypher)
	if err != nil {
		return err
	}
	res.Close()
	return nil
}

const runColumns = `r.id, r.started_at, r.model, r.mode, r.elapsed_ns,
	r.total_tokens, r.success_count, r.error_count, r.init_error`

// ListRuns returns runs newest first.
func (s *KuzuStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	cypher := "MATCH (r:Run) RETURN " + runColumns + " ORDER BY r.started_at DESC"
	var params map[string]any
	if limit > 0 {
		cypher += " LIMIT $lim"
		params = map[string]any{"lim": int64(limit)}
	}
	rows, err := s.query(cypher, params)
	if err != nil {
		return nil, err
	}
	out := make([]RunRecord, 0, len(rows))
	for _, r := range rows {
		run := rowToRun(r)
		if run.Deliverables, err = s.deliverables(run.ID); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// GetRun returns the run with the given ID.
func (s *KuzuStore) GetRun(_ context.Context, id string) (*RunRecord, error) {
	rows, err := s.query(
		"MATCH (r:Run {id: $id}) RETURN "+runColumns,
		map[string]any{"id": id},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	run := rowToRun(rows[0])
	if run.Deliverables, err = s.deliverables(id); err != nil {
		return nil, err
	}
	return &run, nil
}

// deliverables follows PRODUCED edges from a run, in request order.
func (s *KuzuStore) deliverables(runID string) ([]DeliverableRecord, error) {
	rows, err := s.query(
		`MATCH (r:Run {id: $id})-[:PRODUCED]->(d:Deliverable)
		 RETURN d.kind, d.ordinal, d.success, d.error_message, d.attempts, d.tokens, d.elapsed_ns
		 ORDER BY d.ordinal`,
		map[string]any{"id": runID},
	)
	if err != nil {
		return nil, err
	}
	out := make([]DeliverableRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, DeliverableRecord{
			Kind:     toString(r[0]),
			Position: toInt(r[1]),
			Success:  toBool(r[2]),
			Error:    toString(r[3]),
			Attempts: toInt(r[4]),
			Tokens:   toInt(r[5]),
			Elapsed:  time.Duration(toInt64(r[6])),
		})
	}
	return out, nil
}

// exec runs a parameterized Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a parameterized Cypher statement and collects all result rows.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// deliverableID is "runID#position".
func deliverableID(runID string, position int) string {
	return fmt.Sprintf("%s#%d", runID, position)
}

// rowToRun converts a runColumns row into a RunRecord.
func rowToRun(r []any) RunRecord {
	return RunRecord{
		ID:           toString(r[0]),
		StartedAt:    time.Unix(0, toInt64(r[1])).UTC(),
		Model:        toString(r[2]),
		Mode:         toString(r[3]),
		Elapsed:      time.Duration(toInt64(r[4])),
		TotalTokens:  toInt(r[5]),
		SuccessCount: toInt(r[6]),
		ErrorCount:   toInt(r[7]),
		InitError:    toString(r[8]),
	}
}

// KuzuDB returns typed Go values (int64, float64, bool, string).

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toInt(v any) int { return int(toInt64(v)) }

func toBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
