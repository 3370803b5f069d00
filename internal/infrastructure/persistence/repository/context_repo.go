package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/port"
	"github.com/sykepenger/spesialist/internal/domain/entity"
	"github.com/sykepenger/spesialist/internal/domain/event"
	"github.com/sykepenger/spesialist/internal/domain/workflow"
	"github.com/sykepenger/spesialist/internal/infrastructure/persistence/sqlite"
)

const contextColumns = `seq, context_id, hendelse_id, case_id, kind, state, path, needs, created_at`

// latestOnly keeps the newest row of each context
const latestOnly = `c.seq = (SELECT MAX(seq) FROM command_context WHERE context_id = c.context_id)`

const activeStates = `c.state IN ('NEW', 'SUSPENDED')`

// ContextRepository implements port.ContextRepository on the append-only
// command_context table
type ContextRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewContextRepository creates a new context repository
func NewContextRepository(db *sqlite.DB, logger *zap.Logger) port.ContextRepository {
	return &ContextRepository{
		db:     db,
		logger: logger,
	}
}

// Append records a new state for a context
func (r *ContextRepository) Append(ctx context.Context, rec *entity.ContextRecord) error {
	if !rec.State.IsValid() {
		return goerr.Wrap(workflow.ErrInvalidState, "refusing to store context", goerr.V("state", rec.State))
	}

	path := rec.Path
	if path == nil {
		path = []int{}
	}
	needs := rec.Needs
	if needs == nil {
		needs = []event.NeedKind{}
	}
	pathJSON, err := marshalJSON(path)
	if err != nil {
		return err
	}
	needsJSON, err := marshalJSON(needs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO command_context (
			context_id, hendelse_id, case_id, kind, state, path, needs, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		rec.ContextID.String(),
		rec.HendelseID.String(),
		nullUUID(rec.CaseID),
		string(rec.Kind),
		string(rec.State),
		pathJSON,
		needsJSON,
		rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append command context",
			zap.String("context_id", rec.ContextID.String()),
			zap.String("state", string(rec.State)),
			zap.Error(err))
		return goerr.Wrap(err, "failed to append command context",
			goerr.V("context_id", rec.ContextID),
			goerr.V("state", rec.State))
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return goerr.Wrap(err, "failed to get last insert id")
	}
	rec.Seq = seq
	return nil
}

// Latest returns the current state of a context, or nil when unknown
func (r *ContextRepository) Latest(ctx context.Context, contextID uuid.UUID) (*entity.ContextRecord, error) {
	query := `SELECT ` + contextColumns + ` FROM command_context
		WHERE context_id = ?
		ORDER BY seq DESC LIMIT 1`
	return r.queryOne(ctx, query, contextID.String())
}

// LatestForHendelse returns the newest row across all attempts of a hendelse
func (r *ContextRepository) LatestForHendelse(ctx context.Context, hendelseID uuid.UUID) (*entity.ContextRecord, error) {
	query := `SELECT ` + contextColumns + ` FROM command_context
		WHERE hendelse_id = ?
		ORDER BY seq DESC LIMIT 1`
	return r.queryOne(ctx, query, hendelseID.String())
}

// FindActive returns the non-terminal context for a case and kind, if any
func (r *ContextRepository) FindActive(ctx context.Context, caseID uuid.UUID, kind event.Kind) (*entity.ContextRecord, error) {
	query := `SELECT ` + contextColumns + ` FROM command_context c
		WHERE c.case_id = ? AND c.kind = ? AND ` + latestOnly + ` AND ` + activeStates + `
		ORDER BY c.seq DESC LIMIT 1`
	return r.queryOne(ctx, query, caseID.String(), string(kind))
}

// ListActiveForCase returns every non-terminal context for a case, oldest first
func (r *ContextRepository) ListActiveForCase(ctx context.Context, caseID uuid.UUID) ([]*entity.ContextRecord, error) {
	query := `SELECT ` + contextColumns + ` FROM command_context c
		WHERE c.case_id = ? AND ` + latestOnly + ` AND ` + activeStates + `
		ORDER BY c.seq ASC`
	return r.queryMany(ctx, query, caseID.String())
}

// History returns every recorded state of a context, oldest first
func (r *ContextRepository) History(ctx context.Context, contextID uuid.UUID) ([]*entity.ContextRecord, error) {
	query := `SELECT ` + contextColumns + ` FROM command_context
		WHERE context_id = ?
		ORDER BY seq ASC`
	return r.queryMany(ctx, query, contextID.String())
}

func (r *ContextRepository) queryOne(ctx context.Context, query string, args ...interface{}) (*entity.ContextRecord, error) {
	rec, err := scanContext(r.db.Executor(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get command context", zap.Any("args", args), zap.Error(err))
		return nil, goerr.Wrap(err, "failed to get command context")
	}
	return rec, nil
}

func (r *ContextRepository) queryMany(ctx context.Context, query string, args ...interface{}) ([]*entity.ContextRecord, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list command contexts", zap.Any("args", args), zap.Error(err))
		return nil, goerr.Wrap(err, "failed to list command contexts")
	}
	defer rows.Close()

	var records []*entity.ContextRecord
	for rows.Next() {
		rec, err := scanContext(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan command context")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContext(row rowScanner) (*entity.ContextRecord, error) {
	var (
		rec       entity.ContextRecord
		caseID    sql.NullString
		kind      string
		state     string
		pathJSON  string
		needsJSON string
	)
	err := row.Scan(
		&rec.Seq,
		&rec.ContextID,
		&rec.HendelseID,
		&caseID,
		&kind,
		&state,
		&pathJSON,
		&needsJSON,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Kind = event.Kind(kind)
	rec.State = workflow.State(state)
	if rec.CaseID, err = scanUUID(caseID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(pathJSON), &rec.Path); err != nil {
		return nil, goerr.Wrap(err, "invalid cursor path", goerr.V("path", pathJSON))
	}
	if err := json.Unmarshal([]byte(needsJSON), &rec.Needs); err != nil {
		return nil, goerr.Wrap(err, "invalid needs", goerr.V("needs", needsJSON))
	}
	return &rec, nil
}

// Verify interface compliance
var _ port.ContextRepository = (*ContextRepository)(nil)
