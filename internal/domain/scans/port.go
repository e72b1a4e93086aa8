package scans

import "context"

// Repository port (persistence of scan history)
type Repository interface {
	// Save stores r and returns its ID. Implementations assign r.ID when empty.
	Save(ctx context.Context, r *Record) (ID, error)
	// FindByUser returns at most limit records for email, newest first.
	FindByUser(ctx context.Context, email string, limit int) ([]*Record, error)
}

// ImageStore port (storage for uploaded images)
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
