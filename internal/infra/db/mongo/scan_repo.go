package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/pneumax/pneumax-api/internal/domain/scans"
)

type ScanRepository struct {
	db   *mongo.Database
	coll *mongo.Collection
}

func NewScanRepository(db *mongo.Database) *ScanRepository {
	return &ScanRepository{db: db, coll: db.Collection(scansCollection)}
}

// Save inserts s. IDs are ObjectID hex strings so they sort by creation.
func (r *ScanRepository) Save(ctx context.Context, s *domain.Record) (domain.ID, error) {
	if s.ID == "" {
		s.ID = domain.ID(primitive.NewObjectID().Hex())
	}
	if s.SavedAt.IsZero() {
		s.SavedAt = time.Now().UTC()
	}
	if _, err := r.coll.InsertOne(ctx, s); err != nil {
		return "", err
	}
	return s.ID, nil
}

func (r *ScanRepository) FindByUser(ctx context.Context, email string, limit int) ([]*domain.Record, error) {
	if limit <= 0 {
		limit = 10
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, bson.D{{Key: "user_email", Value: email}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]*domain.Record, 0, limit)
	for cur.Next(ctx) {
		var s domain.Record
		if err := cur.Decode(&s); err != nil {
			return nil, err
		}
		s.SavedAt = s.SavedAt.UTC()
		out = append(out, &s)
	}
	return out, cur.Err()
}

// Ping checks the server behind the database.
func (r *ScanRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, nil)
}
