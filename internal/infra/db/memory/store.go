// Package memory provides process-local repositories. They back the
// "memory" database driver and serve as test doubles.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pneumax/pneumax-api/internal/domain/scans"
	"github.com/pneumax/pneumax-api/internal/domain/users"
)

type ScanRepository struct {
	mu      sync.RWMutex
	seq     int64
	records []storedScan
}

type storedScan struct {
	seq int64
	rec scans.Record
}

func NewScanRepository() *ScanRepository { return &ScanRepository{} }

// Save stores a copy of r.
func (r *ScanRepository) Save(_ context.Context, rec *scans.Record) (scans.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *rec
	if cp.ID == "" {
		cp.ID = scans.ID(uuid.NewString())
	}
	r.seq++
	r.records = append(r.records, storedScan{seq: r.seq, rec: cp})
	rec.ID = cp.ID
	return cp.ID, nil
}

// FindByUser returns copies, newest first; equal timestamps keep reverse insertion order.
func (r *ScanRepository) FindByUser(_ context.Context, email string, limit int) ([]*scans.Record, error) {
	r.mu.RLock()
	var matched []storedScan
	for _, s := range r.records {
		if s.rec.UserEmail == email {
			matched = append(matched, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.rec.SavedAt.Equal(b.rec.SavedAt) {
			return a.rec.SavedAt.After(b.rec.SavedAt)
		}
		return a.seq > b.seq
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*scans.Record, 0, len(matched))
	for _, s := range matched {
		rec := s.rec
		out = append(out, &rec)
	}
	return out, nil
}

// Ping always succeeds.
func (r *ScanRepository) Ping(context.Context) error { return nil }

type UserRepository struct {
	mu      sync.RWMutex
	byEmail map[string]users.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{byEmail: make(map[string]users.User)}
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (*users.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, users.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) Create(_ context.Context, u *users.User) (users.ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(u.Email)
	if _, exists := r.byEmail[key]; exists {
		return "", users.ErrEmailTaken
	}
	cp := *u
	if cp.ID == "" {
		cp.ID = users.ID(uuid.NewString())
	}
	r.byEmail[key] = cp
	u.ID = cp.ID
	return cp.ID, nil
}
