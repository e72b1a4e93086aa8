package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	domain "github.com/pneumax/pneumax-api/internal/domain/scans"
)

type ScanRepository struct {
	db *sql.DB
}

func NewScanRepository(db *sql.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Save inserts a scan record
func (r *ScanRepository) Save(ctx context.Context, s *domain.Record) (domain.ID, error) {
	const q = `
INSERT INTO pneumax_scans
  (id, user_email, prediction, confidence, disease, status, precaution, image_url, saved_at, detail_json)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);
`
	if s.ID == "" {
		s.ID = domain.ID(uuid.NewString())
	}
	savedAt := s.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}
	detail, err := encodeDetail(s)
	if err != nil {
		return "", fmt.Errorf("encode scan detail: %w", err)
	}

	_, err = r.db.ExecContext(ctx, q, insertArgs(s, savedAt, detail)...)
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

// insertArgs lists column values in insert order. Strings are stored as given.
func insertArgs(s *domain.Record, savedAt time.Time, detail string) []any {
	return []any{
		s.ID, s.UserEmail, s.Prediction, s.Confidence, s.Disease, s.Status,
		s.Precaution, s.ImageURL, savedAt, detail,
	}
}

// FindByUser returns the newest records for email
func (r *ScanRepository) FindByUser(ctx context.Context, email string, limit int) ([]*domain.Record, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT id, user_email, prediction, confidence, disease, status, precaution, image_url, saved_at, detail_json
FROM pneumax_scans
WHERE user_email=$1
ORDER BY saved_at DESC, seq DESC
LIMIT $2;
`
	rows, err := r.db.QueryContext(ctx, q, email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Record, 0, limit)
	for rows.Next() {
		var s domain.Record
		var detail []byte
		if err := rows.Scan(
			&s.ID, &s.UserEmail, &s.Prediction, &s.Confidence, &s.Disease, &s.Status,
			&s.Precaution, &s.ImageURL, &s.SavedAt, &detail,
		); err != nil {
			return nil, err
		}
		if err := decodeDetail(detail, &s); err != nil {
			return nil, fmt.Errorf("decode scan %s detail: %w", s.ID, err)
		}
		s.SavedAt = s.SavedAt.UTC()
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *ScanRepository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }
