package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quillpad/quillpad/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements Repository on two collections: notes and
// note_attachments. Documents are keyed by a string "id" field rather than
// the ObjectID so identifiers look the same across backends.
type MongoRepo struct {
	notes       *mongo.Collection
	attachments *mongo.Collection
}

func NewMongoRepo(ctx context.Context, db *mongo.Database) (*MongoRepo, error) {
	r := &MongoRepo{notes: db.Collection("notes"), attachments: db.Collection("note_attachments")}
	_, err := r.notes.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
	})
	if err != nil {
		return nil, err
	}
	_, err = r.attachments.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "path", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "noteId", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (m *MongoRepo) List(ctx context.Context, userID string) ([]*models.Note, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := m.notes.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	out := []*models.Note{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(out))
	byID := make(map[string]*models.Note, len(out))
	for _, n := range out {
		ids = append(ids, n.ID)
		byID[n.ID] = n
	}
	atts, err := m.findAttachments(ctx, bson.M{"userId": userID, "noteId": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	for _, a := range atts {
		if n, ok := byID[a.NoteID]; ok {
			n.Attachments = append(n.Attachments, a)
		}
	}
	return out, nil
}

func (m *MongoRepo) Get(ctx context.Context, userID, id string) (*models.Note, error) {
	var n models.Note
	err := m.notes.FindOne(ctx, bson.M{"id": id, "userId": userID}).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	atts, err := m.ListAttachments(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	n.Attachments = atts
	return &n, nil
}

func (m *MongoRepo) Create(ctx context.Context, n *models.Note) (string, error) {
	now := time.Now().UTC()
	n.ID = uuid.NewString()
	n.CreatedAt = now
	n.UpdatedAt = now
	if _, err := m.notes.InsertOne(ctx, n); err != nil {
		return "", err
	}
	return n.ID, nil
}

func (m *MongoRepo) Update(ctx context.Context, userID, id, title, content string) error {
	set := bson.M{"title": title, "content": content, "updatedAt": time.Now().UTC()}
	res, err := m.notes.UpdateOne(ctx, bson.M{"id": id, "userId": userID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := m.notes.DeleteOne(ctx, bson.M{"id": id, "userId": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AddAttachment inserts the row only while the note exists. Mongo has no
// conditional insert across collections, so the note is checked again after
// the insert and the row is withdrawn when a concurrent Delete won.
func (m *MongoRepo) AddAttachment(ctx context.Context, a *models.Attachment) (string, error) {
	ok, err := m.noteExists(ctx, a.UserID, a.NoteID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotFound
	}
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now().UTC()
	if _, err := m.attachments.InsertOne(ctx, a); err != nil {
		return "", err
	}
	ok, err = m.noteExists(ctx, a.UserID, a.NoteID)
	if err == nil && ok {
		return a.ID, nil
	}
	if err == nil {
		err = ErrNotFound
	}
	if _, derr := m.attachments.DeleteOne(ctx, bson.M{"id": a.ID}); derr != nil {
		return "", fmt.Errorf("%w (withdraw attachment %s: %v)", err, a.ID, derr)
	}
	return "", err
}

func (m *MongoRepo) noteExists(ctx context.Context, userID, id string) (bool, error) {
	n, err := m.notes.CountDocuments(ctx, bson.M{"id": id, "userId": userID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *MongoRepo) GetAttachment(ctx context.Context, userID, id string) (*models.Attachment, error) {
	var a models.Attachment
	if err := m.attachments.FindOne(ctx, bson.M{"id": id, "userId": userID}).Decode(&a); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (m *MongoRepo) ListAttachments(ctx context.Context, userID, noteID string) ([]*models.Attachment, error) {
	return m.findAttachments(ctx, bson.M{"userId": userID, "noteId": noteID})
}

func (m *MongoRepo) DeleteAttachment(ctx context.Context, userID, id string) error {
	res, err := m.attachments.DeleteOne(ctx, bson.M{"id": id, "userId": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) Orphans(ctx context.Context) ([]*models.Attachment, error) {
	all, err := m.findAttachments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return all, nil
	}
	noteIDs := make([]string, 0, len(all))
	for _, a := range all {
		noteIDs = append(noteIDs, a.NoteID)
	}
	cur, err := m.notes.Find(ctx, bson.M{"id": bson.M{"$in": noteIDs}}, options.Find().SetProjection(bson.M{"id": 1}))
	if err != nil {
		return nil, err
	}
	var present []struct {
		ID string `bson:"id"`
	}
	if err := cur.All(ctx, &present); err != nil {
		return nil, err
	}
	live := make(map[string]bool, len(present))
	for _, p := range present {
		live[p.ID] = true
	}
	out := []*models.Attachment{}
	for _, a := range all {
		if !live[a.NoteID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MongoRepo) findAttachments(ctx context.Context, filter bson.M) ([]*models.Attachment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := m.attachments.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := []*models.Attachment{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
