package mongo

import (
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/repository"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	campaignCollectionName   = "campaigns"
	submissionCollectionName = "submissions"
)

// parentCollection holds what campaign and submission repositories share:
// the parent collection and the attachment collection that cascades from it.
type parentCollection struct {
	client      *mongo.Client
	collection  *mongo.Collection
	attachments *mongo.Collection
	entries     *mongo.Collection // campaigns only: entries whose campaign link is cleared on delete
}

func newParentCollection(db *mongo.Database, name string, kind domain.ParentKind) parentCollection {
	return parentCollection{
		client:      db.Client(),
		collection:  db.Collection(name),
		attachments: db.Collection(attachmentCollectionName(kind)),
	}
}

func (p parentCollection) findOne(ctx context.Context, id string, out interface{}) error {
	err := p.collection.FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	return err
}

func (p parentCollection) findByOwner(ctx context.Context, ownerID string, out interface{}) error {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := p.collection.Find(ctx, bson.M{"ownerId": ownerID}, opts)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, out)
}

func (p parentCollection) replace(ctx context.Context, id string, doc interface{}) error {
	result, err := p.collection.ReplaceOne(ctx, bson.M{"_id": id}, doc)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// delete removes the parent and its attachment documents in a single transaction.
// Multi-document transactions need a replica set or sharded cluster.
func (p parentCollection) delete(ctx context.Context, id string) error {
	session, err := p.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := p.attachments.DeleteMany(sc, bson.M{"parentId": id}); err != nil {
			return nil, err
		}
		if p.entries != nil {
			if _, err := p.entries.UpdateMany(sc, bson.M{"campaignId": id}, bson.M{"$unset": bson.M{"campaignId": ""}}); err != nil {
				return nil, err
			}
		}
		result, err := p.collection.DeleteOne(sc, bson.M{"_id": id})
		if err != nil {
			return nil, err
		}
		if result.DeletedCount == 0 {
			return nil, repository.ErrNotFound
		}
		return nil, nil
	})
	return err
}

// mongoCampaignRepository implements repository.CampaignRepository
type mongoCampaignRepository struct {
	parentCollection
}

// NewMongoCampaignRepository creates a new Campaign repository backed by MongoDB.
func NewMongoCampaignRepository(db *mongo.Database) repository.CampaignRepository {
	p := newParentCollection(db, campaignCollectionName, domain.KindCampaign)
	p.entries = db.Collection(emailEntryCollectionName)
	return &mongoCampaignRepository{p}
}

func (r *mongoCampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := r.collection.InsertOne(ctx, c)
	return err
}

func (r *mongoCampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	var c domain.Campaign
	if err := r.findOne(ctx, id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *mongoCampaignRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Campaign, error) {
	campaigns := []domain.Campaign{}
	if err := r.findByOwner(ctx, ownerID, &campaigns); err != nil {
		return nil, err
	}
	return campaigns, nil
}

func (r *mongoCampaignRepository) Update(ctx context.Context, c *domain.Campaign) error {
	c.UpdatedAt = time.Now().UTC()
	return r.replace(ctx, c.ID, c)
}

func (r *mongoCampaignRepository) Delete(ctx context.Context, id string) error {
	return r.delete(ctx, id)
}

// mongoSubmissionRepository implements repository.SubmissionRepository
type mongoSubmissionRepository struct {
	parentCollection
}

// NewMongoSubmissionRepository creates a new Submission repository backed by MongoDB.
func NewMongoSubmissionRepository(db *mongo.Database) repository.SubmissionRepository {
	return &mongoSubmissionRepository{newParentCollection(db, submissionCollectionName, domain.KindSubmission)}
}

func (r *mongoSubmissionRepository) Create(ctx context.Context, s *domain.Submission) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	_, err := r.collection.InsertOne(ctx, s)
	return err
}

func (r *mongoSubmissionRepository) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	var s domain.Submission
	if err := r.findOne(ctx, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *mongoSubmissionRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Submission, error) {
	submissions := []domain.Submission{}
	if err := r.findByOwner(ctx, ownerID, &submissions); err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *mongoSubmissionRepository) Update(ctx context.Context, s *domain.Submission) error {
	s.UpdatedAt = time.Now().UTC()
	return r.replace(ctx, s.ID, s)
}

func (r *mongoSubmissionRepository) Delete(ctx context.Context, id string) error {
	return r.delete(ctx, id)
}

// EnsureParentIndexes creates the owner index used by list queries.
func EnsureParentIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	return err
}
