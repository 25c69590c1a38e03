package postgres

import (
	"context"
	"database/sql"
	"errors"

	"skillbridge-quiz-service/internal/domain"
	"github.com/uptrace/bun"
)

// completionRow is the bun model for the completion_records table.
type completionRow struct {
	bun.BaseModel `bun:"table:completion_records"`

	UserAddress   string `bun:"user_address,pk"`
	CourseID      string `bun:"course_id,pk"`
	ArtifactID    string `bun:"artifact_id"`
	MintRequested bool   `bun:"mint_requested"`
	MintConfirmed bool   `bun:"mint_confirmed"`
}

// CompletionStore persists completion records in Postgres via bun.
type CompletionStore struct {
	db *bun.DB
}

func NewCompletionStore(db *bun.DB) *CompletionStore {
	return &CompletionStore{db: db}
}

// Save upserts the record. A row already confirmed is never downgraded,
// keeping the at-most-one-certificate invariant durable.
func (s *CompletionStore) Save(ctx context.Context, record domain.CompletionRecord) error {
	row := completionRow{
		UserAddress:   record.UserAddress,
		CourseID:      record.CourseID,
		ArtifactID:    record.ArtifactID,
		MintRequested: record.MintRequested,
		MintConfirmed: record.MintConfirmed,
	}
	_, err := s.db.NewInsert().
		Model(&row).
		On("CONFLICT (user_address, course_id) DO UPDATE").
		Set("artifact_id = EXCLUDED.artifact_id").
		Set("mint_requested = EXCLUDED.mint_requested").
		Set("mint_confirmed = completion_records.mint_confirmed OR EXCLUDED.mint_confirmed").
		Exec(ctx)
	return err
}

// Get returns the stored record for a (user, course) pair.
func (s *CompletionStore) Get(ctx context.Context, userAddress, courseID string) (domain.CompletionRecord, bool, error) {
	var row completionRow
	err := s.db.NewSelect().
		Model(&row).
		Where("user_address = ?", userAddress).
		Where("course_id = ?", courseID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CompletionRecord{}, false, nil
	}
	if err != nil {
		return domain.CompletionRecord{}, false, err
	}
	return domain.CompletionRecord{
		UserAddress:   row.UserAddress,
		CourseID:      row.CourseID,
		ArtifactID:    row.ArtifactID,
		MintRequested: row.MintRequested,
		MintConfirmed: row.MintConfirmed,
	}, true, nil
}
