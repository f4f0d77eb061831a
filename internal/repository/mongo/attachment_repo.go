package mongo

import (
	"alcyxob/emstore/internal/domain"
	"alcyxob/emstore/internal/repository"
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func attachmentCollectionName(kind domain.ParentKind) string {
	if kind == domain.KindSubmission {
		return "submission_attachments"
	}
	return "campaign_attachments"
}

// mongoAttachmentRepository implements repository.AttachmentRepository for one parent kind.
type mongoAttachmentRepository struct {
	collection *mongo.Collection
	kind       domain.ParentKind
}

// NewMongoAttachmentRepository creates a new attachment repository backed by MongoDB.
func NewMongoAttachmentRepository(db *mongo.Database, kind domain.ParentKind) repository.AttachmentRepository {
	return &mongoAttachmentRepository{
		collection: db.Collection(attachmentCollectionName(kind)),
		kind:       kind,
	}
}

func (r *mongoAttachmentRepository) Kind() domain.ParentKind { return r.kind }

// Create inserts new attachment metadata. A single-document insert is atomic.
func (r *mongoAttachmentRepository) Create(ctx context.Context, a *domain.Attachment) error {
	if a.ID == "" || a.ParentID == "" {
		return errors.New("attachment requires id and parentId")
	}
	a.ParentKind = r.kind
	if _, err := r.collection.InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateKey
		}
		return err
	}
	return nil
}

// GetByID retrieves attachment metadata (and inline bytes, if any) by its ID.
func (r *mongoAttachmentRepository) GetByID(ctx context.Context, id string) (*domain.Attachment, error) {
	var a domain.Attachment
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	a.ParentKind = r.kind
	return &a, nil
}

func (r *mongoAttachmentRepository) ListByParent(ctx context.Context, parentID string, filter domain.AttachmentFilter) ([]domain.Attachment, error) {
	query := bson.M{"parentId": parentID}
	if filter.ContentType != "" {
		query["contentType"] = containsIgnoreCase(filter.ContentType)
	}
	if filter.Search != "" {
		query["originalFilename"] = containsIgnoreCase(filter.Search)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.M{"blobData": 0})
	return r.find(ctx, query, opts)
}

func (r *mongoAttachmentRepository) ListMissingURL(ctx context.Context, limit int) ([]domain.Attachment, error) {
	query := bson.M{"$or": bson.A{
		bson.M{"downloadUrl": bson.M{"$exists": false}},
		bson.M{"downloadUrl": nil},
		bson.M{"downloadUrl": ""},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetProjection(bson.M{"blobData": 0})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, query, opts)
}

func (r *mongoAttachmentRepository) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]domain.Attachment, error) {
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	list := []domain.Attachment{}
	if err := cursor.All(ctx, &list); err != nil {
		return nil, err
	}
	for i := range list {
		list[i].ParentKind = r.kind
	}
	return list, nil
}

// SetDownloadURL only touches the URL and timestamp fields.
func (r *mongoAttachmentRepository) SetDownloadURL(ctx context.Context, id, url string) error {
	update := bson.M{"$set": bson.M{"downloadUrl": url, "updatedAt": time.Now().UTC()}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *mongoAttachmentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func containsIgnoreCase(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

// EnsureAttachmentIndexes creates necessary indexes for an attachments collection.
func EnsureAttachmentIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			// Listing attachments of one parent, newest first
			Keys: bson.D{{Key: "parentId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
		{
			// Blob keys are generated from uuids and must never collide
			Keys:    bson.D{{Key: "blobKey", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	}
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// EnsureIndexes creates the indexes of every collection the service uses.
// Every collection is attempted; failures are joined.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	errs := []error{
		EnsureUserIndexes(ctx, db.Collection(userCollectionName)),
		EnsureParentIndexes(ctx, db.Collection(campaignCollectionName)),
		EnsureParentIndexes(ctx, db.Collection(submissionCollectionName)),
		EnsureAttachmentIndexes(ctx, db.Collection(attachmentCollectionName(domain.KindCampaign))),
		EnsureAttachmentIndexes(ctx, db.Collection(attachmentCollectionName(domain.KindSubmission))),
		EnsureEmailEntryIndexes(ctx, db.Collection(emailEntryCollectionName)),
	}
	return errors.Join(errs...)
}
