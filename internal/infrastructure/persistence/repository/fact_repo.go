package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/sykepenger/spesialist/internal/application/port"
	"github.com/sykepenger/spesialist/internal/domain/entity"
	"github.com/sykepenger/spesialist/internal/domain/event"
	"github.com/sykepenger/spesialist/internal/infrastructure/persistence/sqlite"
)

// CaseFactRepository implements port.CaseFactRepository
type CaseFactRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewCaseFactRepository creates a new case fact repository
func NewCaseFactRepository(db *sqlite.DB, logger *zap.Logger) port.CaseFactRepository {
	return &CaseFactRepository{
		db:     db,
		logger: logger,
	}
}

func caseKey(caseID *uuid.UUID) string {
	if caseID == nil {
		return ""
	}
	return caseID.String()
}

// Save stores or replaces a fact
func (r *CaseFactRepository) Save(ctx context.Context, fact *entity.CaseFact) error {
	query := `
		INSERT INTO case_fact (person_id, case_key, kind, data, stored_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(person_id, case_key, kind) DO UPDATE SET data = excluded.data, stored_at = excluded.stored_at
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		fact.PersonID,
		caseKey(fact.CaseID),
		string(fact.Kind),
		string(fact.Data),
		fact.StoredAt,
	)
	if err != nil {
		r.logger.Error("Failed to save case fact", zap.String("kind", string(fact.Kind)), zap.Error(err))
		return goerr.Wrap(err, "failed to save case fact", goerr.V("kind", fact.Kind))
	}
	return nil
}

// Get retrieves a fact, or nil when none is stored
func (r *CaseFactRepository) Get(ctx context.Context, personID string, caseID *uuid.UUID, kind event.NeedKind) (*entity.CaseFact, error) {
	query := `
		SELECT data, stored_at FROM case_fact
		WHERE person_id = ? AND case_key = ? AND kind = ?
	`

	var (
		data string
		fact = entity.CaseFact{PersonID: personID, CaseID: caseID, Kind: kind}
	)
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, personID, caseKey(caseID), string(kind)).
		Scan(&data, &fact.StoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get case fact", zap.String("kind", string(kind)), zap.Error(err))
		return nil, goerr.Wrap(err, "failed to get case fact", goerr.V("kind", kind))
	}

	fact.Data = []byte(data)
	return &fact, nil
}

// Verify interface compliance
var _ port.CaseFactRepository = (*CaseFactRepository)(nil)
