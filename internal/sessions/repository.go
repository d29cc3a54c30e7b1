package sessions

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository stores refresh sessions. GetByRefresh returns (nil, nil) when no
// session matches.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByRefresh(ctx context.Context, refresh string) (*Session, error)
	DeleteByRefresh(ctx context.Context, refresh string) error
	// DeleteBySub drops every session of one user and reports how many went.
	DeleteBySub(ctx context.Context, sub string) (int, error)
}

const defaultSessionTTL = 7 * 24 * time.Hour

// MongoRepository keeps one document per refresh session.
type MongoRepository struct {
	col *mongo.Collection
}

// NewMongoRepository prepares the collection: refresh tokens are unique, sub
// is indexed for sign-out-everywhere, and a TTL index lets Mongo drop expired
// sessions on its own.
func NewMongoRepository(ctx context.Context, col *mongo.Collection) (*MongoRepository, error) {
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "refreshToken", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "sub", Value: 1}}},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
	if err != nil {
		return nil, err
	}
	return &MongoRepository{col: col}, nil
}

func (r *MongoRepository) Create(ctx context.Context, s *Session) error {
	stampDefaults(s, time.Now().UTC())
	_, err := r.col.InsertOne(ctx, s)
	return err
}

func (r *MongoRepository) GetByRefresh(ctx context.Context, refresh string) (*Session, error) {
	var s Session
	err := r.col.FindOne(ctx, bson.M{"refreshToken": refresh}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *MongoRepository) DeleteByRefresh(ctx context.Context, refresh string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"refreshToken": refresh})
	return err
}

func (r *MongoRepository) DeleteBySub(ctx context.Context, sub string) (int, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"sub": sub})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

// stampDefaults fills CreatedAt and ExpiresAt when the caller left them zero.
func stampDefaults(s *Session, now time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = s.CreatedAt.Add(defaultSessionTTL)
	}
}
