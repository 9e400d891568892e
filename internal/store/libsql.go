package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/docuflow/docuflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Workflow definitions ---

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, def *WorkflowRecord) error {
	nodes, conns, err := marshalGraph(def)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, description, enabled, version, canvas_data, nodes, connections, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		def.ID, def.Name, nullStr(def.Description), boolToInt(def.Enabled), def.Version,
		nullRaw(def.CanvasData), nodes, conns, timeOrNow(def.CreatedAt), timeOrNow(def.UpdatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow name %q already in use", def.Name).WithCause(err)
	}
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*WorkflowRecord, error) {
	return s.getWorkflowWhere(ctx, "id = ?", id)
}

func (s *LibSQLStore) GetWorkflowByName(ctx context.Context, name string) (*WorkflowRecord, error) {
	return s.getWorkflowWhere(ctx, "name = ?", name)
}

func (s *LibSQLStore) getWorkflowWhere(ctx context.Context, where string, arg any) (*WorkflowRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, enabled, version, canvas_data, nodes, connections, created_at, updated_at
		 FROM workflows WHERE `+where, arg)
	def, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", fmt.Sprint(arg))
	}
	return def, err
}

// UpdateWorkflow replaces the stored definition and bumps its version.
func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, def *WorkflowRecord) error {
	nodes, conns, err := marshalGraph(def)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET name = ?, description = ?, enabled = ?, version = version + 1,
		        canvas_data = ?, nodes = ?, connections = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		def.Name, nullStr(def.Description), boolToInt(def.Enabled),
		nullRaw(def.CanvasData), nodes, conns, def.ID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return schema.NewErrorf(schema.ErrCodeConflict, "workflow name %q already in use", def.Name).WithCause(err)
		}
		return err
	}
	return checkRowsAffected(res, "workflow", def.ID)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowRecord, error) {
	var where []string
	var args []any

	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolToInt(*filter.Enabled))
	}

	query := `SELECT id, name, description, enabled, version, canvas_data, nodes, connections, created_at, updated_at FROM workflows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*WorkflowRecord
	for rows.Next() {
		def, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

func marshalGraph(def *WorkflowRecord) (string, any, error) {
	nodes, err := json.Marshal(def.Nodes)
	if err != nil {
		return "", nil, fmt.Errorf("marshal nodes: %w", err)
	}
	var conns any
	if len(def.Connections) > 0 {
		b, err := json.Marshal(def.Connections)
		if err != nil {
			return "", nil, fmt.Errorf("marshal connections: %w", err)
		}
		conns = string(b)
	}
	return string(nodes), conns, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*WorkflowRecord, error) {
	def := &WorkflowRecord{}
	var desc, canvas, conns sql.NullString
	var nodes string
	var enabled int
	if err := row.Scan(&def.ID, &def.Name, &desc, &enabled, &def.Version, &canvas, &nodes, &conns,
		&def.CreatedAt, &def.UpdatedAt); err != nil {
		return nil, err
	}
	def.Description = desc.String
	def.Enabled = enabled != 0
	def.CanvasData = rawOrNil(canvas)
	if err := json.Unmarshal([]byte(nodes), &def.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if conns.Valid && conns.String != "" {
		if err := json.Unmarshal([]byte(conns.String), &def.Connections); err != nil {
			return nil, fmt.Errorf("unmarshal connections: %w", err)
		}
	}
	return def, nil
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, exec *Execution) error {
	bag, err := marshalBag(exec.Context)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, workflow_id, document_id, status, current_node_id, context, waiting_until, waiting_for, error_message, started_at, completed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.WorkflowID, nullStr(exec.DocumentID), string(exec.Status), exec.CurrentNodeID,
		bag, nullTime(exec.WaitingUntil), nullStr(exec.WaitingFor), nullStr(exec.ErrorMessage),
		timeOrNow(exec.StartedAt), nullTime(exec.CompletedAt), timeOrNow(exec.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx, execSelect+` WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	return exec, err
}

const execSelect = `SELECT id, workflow_id, document_id, status, current_node_id, context, waiting_until, waiting_for, error_message, started_at, completed_at, updated_at FROM executions`

func scanExecution(row rowScanner) (*Execution, error) {
	exec := &Execution{}
	var docID, bag, waitingFor, errMsg sql.NullString
	var waitingUntil, completedAt sql.NullTime
	var status string
	if err := row.Scan(&exec.ID, &exec.WorkflowID, &docID, &status, &exec.CurrentNodeID,
		&bag, &waitingUntil, &waitingFor, &errMsg, &exec.StartedAt, &completedAt, &exec.UpdatedAt); err != nil {
		return nil, err
	}
	exec.DocumentID = docID.String
	exec.Status = schema.ExecutionStatus(status)
	exec.WaitingFor = waitingFor.String
	exec.ErrorMessage = errMsg.String
	if bag.Valid && bag.String != "" {
		if err := json.Unmarshal([]byte(bag.String), &exec.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	if waitingUntil.Valid {
		exec.WaitingUntil = &waitingUntil.Time
	}
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	return exec, nil
}

func (s *LibSQLStore) UpdateExecution(ctx context.Context, id string, update ExecutionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.CurrentNodeID != nil {
		sets = append(sets, "current_node_id = ?")
		args = append(args, *update.CurrentNodeID)
	}
	if update.Context != nil {
		bag, err := marshalBag(update.Context)
		if err != nil {
			return err
		}
		sets = append(sets, "context = ?")
		args = append(args, bag)
	}
	if update.ClearWaiting {
		sets = append(sets, "waiting_until = NULL", "waiting_for = NULL")
	} else {
		if update.WaitingUntil != nil {
			sets = append(sets, "waiting_until = ?")
			args = append(args, *update.WaitingUntil)
		}
		if update.WaitingFor != nil {
			sets = append(sets, "waiting_for = ?")
			args = append(args, *update.WaitingFor)
		}
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *update.ErrorMessage)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE executions SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", id)
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.DocumentID != "" {
		where = append(where, "document_id = ?")
		args = append(args, filter.DocumentID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := execSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func (s *LibSQLStore) ClaimResume(ctx context.Context, id string, inject map[string]any) (*Execution, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	exec, err := claimResumeTx(ctx, tx, id, inject)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return exec, nil
}

// claimResumeTx performs the waiting -> running claim inside an open transaction.
// Shared with ConsumeToken so token consumption and the claim are one atomic unit.
func claimResumeTx(ctx context.Context, tx *sql.Tx, id string, inject map[string]any) (*Execution, error) {
	row := tx.QueryRowContext(ctx, execSelect+` WHERE id = ?`, id)
	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("execution", id)
	}
	if err != nil {
		return nil, err
	}
	if exec.Status != schema.ExecutionStatusWaiting {
		return nil, schema.NewErrorf(schema.ErrCodeNotWaiting, "execution %s is %s, not waiting", id, exec.Status)
	}

	if exec.Context == nil {
		exec.Context = make(map[string]any)
	}
	for k, v := range inject {
		exec.Context[k] = v
	}
	bag, err := marshalBag(exec.Context)
	if err != nil {
		return nil, err
	}

	// The status guard in the WHERE clause is the mutual exclusion: a second
	// concurrent claimer matches zero rows.
	res, err := tx.ExecContext(ctx,
		`UPDATE executions SET status = ?, context = ?, waiting_until = NULL, waiting_for = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ?`,
		string(schema.ExecutionStatusRunning), bag, id, string(schema.ExecutionStatusWaiting),
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, schema.NewErrorf(schema.ErrCodeNotWaiting, "execution %s is no longer waiting", id)
	}

	exec.Status = schema.ExecutionStatusRunning
	exec.WaitingUntil = nil
	exec.WaitingFor = ""
	return exec, nil
}

func (s *LibSQLStore) ListExpiredWaiting(ctx context.Context, now time.Time) ([]*Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		execSelect+` WHERE status = ? AND waiting_until IS NOT NULL AND waiting_until < ? ORDER BY waiting_until`,
		string(schema.ExecutionStatusWaiting), now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

// --- Approval tokens ---

func (s *LibSQLStore) CreateToken(ctx context.Context, token *ApprovalToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approval_tokens (id, token, execution_id, node_id, document_id, assigned_user_id, assigned_group_id, message, expires_at, response_action, response_comment, responded_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID, token.Token, token.ExecutionID, token.NodeID, nullStr(token.DocumentID),
		nullStr(token.AssignedUserID), nullStr(token.AssignedGroupID), nullStr(token.Message),
		token.ExpiresAt, nullStr(token.ResponseAction), nullStr(token.ResponseComment),
		nullTime(token.RespondedAt), timeOrNow(token.CreatedAt),
	)
	return err
}

const tokenSelect = `SELECT id, token, execution_id, node_id, document_id, assigned_user_id, assigned_group_id, message, expires_at, response_action, response_comment, responded_at, created_at FROM approval_tokens`

func scanToken(row rowScanner) (*ApprovalToken, error) {
	t := &ApprovalToken{}
	var docID, userID, groupID, message, action, comment sql.NullString
	var respondedAt sql.NullTime
	if err := row.Scan(&t.ID, &t.Token, &t.ExecutionID, &t.NodeID, &docID, &userID, &groupID,
		&message, &t.ExpiresAt, &action, &comment, &respondedAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.DocumentID = docID.String
	t.AssignedUserID = userID.String
	t.AssignedGroupID = groupID.String
	t.Message = message.String
	t.ResponseAction = action.String
	t.ResponseComment = comment.String
	if respondedAt.Valid {
		t.RespondedAt = &respondedAt.Time
	}
	return t, nil
}

func (s *LibSQLStore) GetTokenByValue(ctx context.Context, value string) (*ApprovalToken, error) {
	row := s.db.QueryRowContext(ctx, tokenSelect+` WHERE token = ?`, value)
	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, schema.NewError(schema.ErrCodeInvalidToken, "unknown approval token")
	}
	return t, err
}

func (s *LibSQLStore) OpenTokenForNode(ctx context.Context, executionID, nodeID string) (*ApprovalToken, error) {
	row := s.db.QueryRowContext(ctx,
		tokenSelect+` WHERE execution_id = ? AND node_id = ? AND responded_at IS NULL ORDER BY created_at DESC LIMIT 1`,
		executionID, nodeID,
	)
	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("approval_token", executionID+"/"+nodeID)
	}
	return t, err
}

func (s *LibSQLStore) ConsumeToken(ctx context.Context, value, decision, comment string, now time.Time) (*ApprovalToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, tokenSelect+` WHERE token = ?`, value)
	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, schema.NewError(schema.ErrCodeInvalidToken, "unknown approval token")
	}
	if err != nil {
		return nil, err
	}
	if t.Responded() {
		return nil, schema.NewErrorf(schema.ErrCodeAlreadyProcessed, "token already resolved as %q", t.ResponseAction).
			WithDetails(map[string]any{"decision": t.ResponseAction, "responded_at": t.RespondedAt})
	}
	// Expiry precedence: an expired token never reaches the resume path.
	if t.Expired(now) {
		return nil, schema.NewErrorf(schema.ErrCodeExpired, "token expired at %s", t.ExpiresAt.Format(time.RFC3339))
	}

	// The responded_at IS NULL guard makes consumption single-use under
	// concurrency; the loser of the race matches zero rows.
	res, err := tx.ExecContext(ctx,
		`UPDATE approval_tokens SET response_action = ?, response_comment = ?, responded_at = ?
		 WHERE id = ? AND responded_at IS NULL`,
		decision, nullStr(comment), now, t.ID,
	)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, schema.NewError(schema.ErrCodeAlreadyProcessed, "token already resolved")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO decision_history (execution_id, node_id, token_id, decision, comment, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ExecutionID, t.NodeID, t.ID, decision, nullStr(comment), now,
	); err != nil {
		return nil, fmt.Errorf("append decision: %w", err)
	}

	inject := map[string]any{
		schema.BagKeyDecision:       decision,
		schema.BagKeyDecisionNodeID: t.NodeID,
	}
	if comment != "" {
		inject[schema.BagKeyDecisionComment] = comment
	}
	if _, err := claimResumeTx(ctx, tx, t.ExecutionID, inject); err != nil {
		// A waiting execution must back the open token; surface a concurrent
		// resume as already-processed rather than leaking the claim error.
		if schema.CodeOf(err) == schema.ErrCodeNotWaiting {
			return nil, schema.NewError(schema.ErrCodeAlreadyProcessed, "execution already resumed")
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit consume: %w", err)
	}

	t.ResponseAction = decision
	t.ResponseComment = comment
	t.RespondedAt = &now
	return t, nil
}

// --- Decision history ---

func (s *LibSQLStore) AppendDecision(ctx context.Context, rec *DecisionRecord) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO decision_history (execution_id, node_id, token_id, decision, comment, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ExecutionID, rec.NodeID, nullStr(rec.TokenID), rec.Decision, nullStr(rec.Comment), timeOrNow(rec.DecidedAt),
	)
	if err != nil {
		return err
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

func (s *LibSQLStore) ListDecisions(ctx context.Context, executionID string) ([]*DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, node_id, token_id, decision, comment, decided_at
		 FROM decision_history WHERE execution_id = ? ORDER BY id`, executionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*DecisionRecord
	for rows.Next() {
		rec := &DecisionRecord{}
		var tokenID, comment sql.NullString
		if err := rows.Scan(&rec.ID, &rec.ExecutionID, &rec.NodeID, &tokenID, &rec.Decision, &comment, &rec.DecidedAt); err != nil {
			return nil, err
		}
		rec.TokenID = tokenID.String
		rec.Comment = comment.String
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// --- Event log ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Next sequence number for this execution.
	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE execution_id = ?`, event.ExecutionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	payload, err := marshalBag(event.Payload)
	if err != nil {
		return err
	}
	ts := timeOrNow(event.Timestamp)
	event.Timestamp = ts

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (execution_id, node_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ExecutionID, nullStr(event.NodeID), event.Type, payload, ts, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, executionID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, node_id, event_type, payload, timestamp, sequence
		 FROM events WHERE execution_id = ? AND sequence > ? ORDER BY sequence ASC`,
		executionID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *LibSQLStore) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	var where []string
	var args []any

	if eventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, eventType)
	}
	if filter.ExecutionID != "" {
		where = append(where, "execution_id = ?")
		args = append(args, filter.ExecutionID)
	}
	if filter.NodeID != "" {
		where = append(where, "node_id = ?")
		args = append(args, filter.NodeID)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, execution_id, node_id, event_type, payload, timestamp, sequence FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var nodeID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.ExecutionID, &nodeID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.NodeID = nodeID.String
		if payload.Valid && payload.String != "" {
			_ = json.Unmarshal([]byte(payload.String), &e.Payload)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalBag(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal context: %w", err)
	}
	return string(b), nil
}
