package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"scriptlab/internal/services"
)

// Status is the lifecycle state of a workflow.
type Status string

const (
	// StatusDraft workflows have a brief but no plan yet.
	StatusDraft Status = "draft"
	// StatusPlanned workflows have a plan and live asset slots.
	StatusPlanned Status = "planned"
	// StatusPlanFailed workflows failed primary plan generation.
	StatusPlanFailed Status = "plan_failed"
)

// Workflow is one persisted production session.
type Workflow struct {
	ID              string
	AccountID       string
	Title           string
	Status          Status
	BriefJSON       []byte
	PlanJSON        []byte
	DefaultsJSON    []byte
	SlotsJSON       []byte
	ChatJSON        []byte
	CritiqueSummary string
	ErrorMessage    string
	Revision        int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const workflowColumns = "id, account_id, title, status, brief_json, plan_json, defaults_json, slots_json, chat_json, critique_summary, error_message, revision, created_at, updated_at"

// CreateWorkflow inserts wf, assigning an ID when it has none.
func (s *Store) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	if wf == nil {
		return errors.New("create workflow: nil workflow")
	}
	if strings.TrimSpace(wf.AccountID) == "" {
		return services.Wrap(services.ErrValidation, "store", "create workflow", "account id required", nil)
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.Status == "" {
		wf.Status = StatusDraft
	}
	now := s.timestamp()
	_, err := s.execWithRetry(ctx,
		`INSERT INTO workflows (`+workflowColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		wf.ID, wf.AccountID, nullableString(wf.Title), string(wf.Status),
		nullableBlob(wf.BriefJSON), nullableBlob(wf.PlanJSON), nullableBlob(wf.DefaultsJSON),
		nullableBlob(wf.SlotsJSON), nullableBlob(wf.ChatJSON),
		nullableString(wf.CritiqueSummary), nullableString(wf.ErrorMessage),
		now, now,
	)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	wf.Revision = 1
	wf.CreatedAt, _ = parseTimeString(now)
	wf.UpdatedAt = wf.CreatedAt
	return nil
}

// GetWorkflow fetches a workflow by ID. Unknown IDs wrap services.ErrNotFound.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "store", "get workflow", "unknown workflow "+id, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return wf, nil
}

// UpdateWorkflow writes every mutable column of wf and bumps its revision.
func (s *Store) UpdateWorkflow(ctx context.Context, wf *Workflow) error {
	if wf == nil {
		return errors.New("update workflow: nil workflow")
	}
	now := s.timestamp()
	res, err := s.execWithRetry(ctx,
		`UPDATE workflows SET title = ?, status = ?, brief_json = ?, plan_json = ?, defaults_json = ?,
			slots_json = ?, chat_json = ?, critique_summary = ?, error_message = ?,
			revision = revision + 1, updated_at = ?
		WHERE id = ?`,
		nullableString(wf.Title), string(wf.Status),
		nullableBlob(wf.BriefJSON), nullableBlob(wf.PlanJSON), nullableBlob(wf.DefaultsJSON),
		nullableBlob(wf.SlotsJSON), nullableBlob(wf.ChatJSON),
		nullableString(wf.CritiqueSummary), nullableString(wf.ErrorMessage),
		now, wf.ID,
	)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return services.Wrap(services.ErrNotFound, "store", "update workflow", "unknown workflow "+wf.ID, nil)
	}
	wf.Revision++
	wf.UpdatedAt, _ = parseTimeString(now)
	return nil
}

// ListWorkflows returns the account's workflows, most recently updated first.
// A non-positive limit returns all of them.
func (s *Store) ListWorkflows(ctx context.Context, accountID string, limit int) ([]*Workflow, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + workflowColumns + ` FROM workflows WHERE account_id = ? ORDER BY updated_at DESC, id`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []*Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

// DeleteWorkflow removes a workflow. Unknown IDs wrap services.ErrNotFound.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return services.Wrap(services.ErrNotFound, "store", "delete workflow", "unknown workflow "+id, nil)
	}
	return nil
}

func scanWorkflow(scanner interface{ Scan(dest ...any) error }) (*Workflow, error) {
	var (
		wf                                     Workflow
		title, status                          sql.NullString
		brief, planJSON, defaults, slots, chat sql.NullString
		critique, errorMessage                 sql.NullString
		createdRaw, updatedRaw                 string
	)
	if err := scanner.Scan(
		&wf.ID, &wf.AccountID, &title, &status,
		&brief, &planJSON, &defaults, &slots, &chat,
		&critique, &errorMessage, &wf.Revision,
		&createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	wf.Title = title.String
	wf.Status = Status(status.String)
	wf.BriefJSON = blob(brief)
	wf.PlanJSON = blob(planJSON)
	wf.DefaultsJSON = blob(defaults)
	wf.SlotsJSON = blob(slots)
	wf.ChatJSON = blob(chat)
	wf.CritiqueSummary = critique.String
	wf.ErrorMessage = errorMessage.String
	if created, err := parseTimeString(createdRaw); err == nil {
		wf.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		wf.UpdatedAt = updated
	}
	return &wf, nil
}

func blob(value sql.NullString) []byte {
	if !value.Valid || value.String == "" {
		return nil
	}
	return []byte(value.String)
}
