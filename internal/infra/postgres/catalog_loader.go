package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"skillbridge-quiz-service/internal/domain"
	"skillbridge-quiz-service/internal/infra/memory"
	"github.com/jackc/pgx/v4/pgxpool"
)

// CatalogLoader loads assessment JSONB from Postgres.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadAssessment(ctx context.Context, kind domain.AssessmentKind, courseID string) (domain.Assessment, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM assessments WHERE id=$1`, memory.CatalogKey(kind, courseID)).Scan(&raw)
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("load assessment: %w", err)
	}
	var assessment domain.Assessment
	if err := json.Unmarshal(raw, &assessment); err != nil {
		return domain.Assessment{}, fmt.Errorf("unmarshal assessment: %w", err)
	}
	return assessment, nil
}
