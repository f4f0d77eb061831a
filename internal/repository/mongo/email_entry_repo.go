package mongo

import (
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const emailEntryCollectionName = "email_entries"

type mongoEmailEntryRepository struct {
	client  *mongo.Client
	entries *mongo.Collection
}

// NewMongoEmailEntryRepository stores subscriber entries in the "email_entries" collection.
func NewMongoEmailEntryRepository(db *mongo.Database) repository.EmailEntryRepository {
	return &mongoEmailEntryRepository{client: db.Client(), entries: db.Collection(emailEntryCollectionName)}
}

func prepareEntry(e *domain.EmailEntry, now time.Time) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Email = domain.NormalizeEmail(e.Email)
	e.CreatedAt, e.UpdatedAt = now, now
	if e.SignupDate.IsZero() {
		e.SignupDate = now.Truncate(24 * time.Hour)
	}
}

func duplicateOr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return repository.ErrDuplicateKey
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *mongoEmailEntryRepository) Create(ctx context.Context, e *domain.EmailEntry) error {
	prepareEntry(e, time.Now().UTC())
	_, err := r.entries.InsertOne(ctx, e)
	return duplicateOr(err, "insert email entry")
}

// CreateMany inserts inside a transaction so a duplicate rolls back the whole batch.
func (r *mongoEmailEntryRepository) CreateMany(ctx context.Context, entries []domain.EmailEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	docs := make([]interface{}, len(entries))
	for i := range entries {
		prepareEntry(&entries[i], now)
		docs[i] = entries[i]
	}

	session, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return r.entries.InsertMany(sc, docs)
	})
	return duplicateOr(err, "insert email entries")
}

func (r *mongoEmailEntryRepository) GetByID(ctx context.Context, id string) (*domain.EmailEntry, error) {
	var e domain.EmailEntry
	if err := r.entries.FindOne(ctx, bson.M{"_id": id}).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *mongoEmailEntryRepository) ListByOwner(ctx context.Context, ownerID string, filter domain.EmailEntryFilter) ([]domain.EmailEntry, error) {
	query := bson.M{"ownerId": ownerID}
	if filter.CampaignID != "" {
		query["campaignId"] = filter.CampaignID
	}
	opts := options.Find().SetSort(bson.D{{Key: "signupDate", Value: 1}, {Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.entries.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	list := []domain.EmailEntry{}
	if err := cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *mongoEmailEntryRepository) ExistingEmails(ctx context.Context, ownerID string, emails []string) ([]string, error) {
	out := []string{}
	if len(emails) == 0 {
		return out, nil
	}
	normalized := make([]string, len(emails))
	for i, e := range emails {
		normalized[i] = domain.NormalizeEmail(e)
	}
	values, err := r.entries.Distinct(ctx, "email", bson.M{"ownerId": ownerID, "email": bson.M{"$in": normalized}})
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *mongoEmailEntryRepository) Update(ctx context.Context, e *domain.EmailEntry) error {
	e.Email = domain.NormalizeEmail(e.Email)
	e.UpdatedAt = time.Now().UTC()
	result, err := r.entries.ReplaceOne(ctx, bson.M{"_id": e.ID, "ownerId": e.OwnerID}, e)
	if err != nil {
		return duplicateOr(err, "replace email entry")
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *mongoEmailEntryRepository) Delete(ctx context.Context, id string) error {
	result, err := r.entries.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureEmailEntryIndexes enforces one entry per owner and email and backs the listing order.
func EnsureEmailEntryIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_owner_email"),
		},
		{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "signupDate", Value: 1}}},
		{Keys: bson.D{{Key: "campaignId", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	return err
}
