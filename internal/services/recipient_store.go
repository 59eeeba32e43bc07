package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AnshRaj112/giftwise-backend/internal/models"
)

const recipientsCollection = "recipients"

// ErrRecipientNotFound is returned when no recipient matches both the id
// and the requesting user.
var ErrRecipientNotFound = errors.New("recipient not found")

// RecipientStore is the ownership-scoped data access for recipients.
// Every lookup by id also filters on the owning user.
type RecipientStore interface {
	Create(ctx context.Context, r *models.Recipient) error
	ListByUser(ctx context.Context, userID string) ([]models.Recipient, error)
	GetByUser(ctx context.Context, id, userID string) (*models.Recipient, error)
	DeleteByUser(ctx context.Context, id, userID string) error
	AddStyles(ctx context.Context, id, userID string, styles []string) (*models.Recipient, error)
	SetPicture(ctx context.Context, id, userID, picture string) (*models.Recipient, error)
	UpdateByUser(ctx context.Context, id, userID string, fields bson.M) (*models.Recipient, error)
}

type MongoRecipientStore struct {
	col *mongo.Collection
}

func NewMongoRecipientStore(db *mongo.Database) *MongoRecipientStore {
	return &MongoRecipientStore{col: db.Collection(recipientsCollection)}
}

// ownedFilter builds the {_id, user} ownership filter. A malformed id can
// never match a document, so it reports not found.
func ownedFilter(id, userID string) (bson.M, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrRecipientNotFound
	}
	return bson.M{"_id": oid, "user": userID}, nil
}

func (s *MongoRecipientStore) Create(ctx context.Context, r *models.Recipient) error {
	now := time.Now().UTC()
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	if r.LikedStyles == nil {
		r.LikedStyles = []string{}
	}
	r.CreatedAt = now
	r.UpdatedAt = now

	if _, err := s.col.InsertOne(ctx, r); err != nil {
		return errors.Wrap(err, "insert recipient")
	}
	return nil
}

func (s *MongoRecipientStore) ListByUser(ctx context.Context, userID string) ([]models.Recipient, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := s.col.Find(ctx, bson.M{"user": userID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find recipients")
	}
	defer cursor.Close(ctx)

	recipients := []models.Recipient{}
	if err := cursor.All(ctx, &recipients); err != nil {
		return nil, errors.Wrap(err, "decode recipients")
	}
	for i := range recipients {
		if recipients[i].LikedStyles == nil {
			recipients[i].LikedStyles = []string{}
		}
	}
	return recipients, nil
}

func (s *MongoRecipientStore) GetByUser(ctx context.Context, id, userID string) (*models.Recipient, error) {
	filter, err := ownedFilter(id, userID)
	if err != nil {
		return nil, err
	}

	var r models.Recipient
	if err := s.col.FindOne(ctx, filter).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRecipientNotFound
		}
		return nil, errors.Wrap(err, "find recipient")
	}
	if r.LikedStyles == nil {
		r.LikedStyles = []string{}
	}
	return &r, nil
}

func (s *MongoRecipientStore) DeleteByUser(ctx context.Context, id, userID string) error {
	filter, err := ownedFilter(id, userID)
	if err != nil {
		return err
	}

	res, err := s.col.DeleteOne(ctx, filter)
	if err != nil {
		return errors.Wrap(err, "delete recipient")
	}
	if res.DeletedCount == 0 {
		return ErrRecipientNotFound
	}
	return nil
}

// AddStyles unions styles into likedStyles with $addToSet, so concurrent
// appends from the same owner do not drop each other's tags.
func (s *MongoRecipientStore) AddStyles(ctx context.Context, id, userID string, styles []string) (*models.Recipient, error) {
	return s.updateOne(ctx, id, userID, bson.M{
		"$addToSet": bson.M{"likedStyles": bson.M{"$each": styles}},
		"$set":      bson.M{"updatedAt": time.Now().UTC()},
	})
}

func (s *MongoRecipientStore) SetPicture(ctx context.Context, id, userID, picture string) (*models.Recipient, error) {
	return s.updateOne(ctx, id, userID, bson.M{
		"$set": bson.M{"picture": picture, "updatedAt": time.Now().UTC()},
	})
}

// UpdateByUser applies fields with $set. Callers must strip identity and
// ownership keys before calling.
func (s *MongoRecipientStore) UpdateByUser(ctx context.Context, id, userID string, fields bson.M) (*models.Recipient, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range fields {
		set[k] = v
	}
	return s.updateOne(ctx, id, userID, bson.M{"$set": set})
}

func (s *MongoRecipientStore) updateOne(ctx context.Context, id, userID string, update bson.M) (*models.Recipient, error) {
	filter, err := ownedFilter(id, userID)
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var r models.Recipient
	if err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRecipientNotFound
		}
		return nil, errors.Wrap(err, "update recipient")
	}
	if r.LikedStyles == nil {
		r.LikedStyles = []string{}
	}
	return &r, nil
}

// namespaceExistsCode is the server error returned by create on an
// existing collection.
const namespaceExistsCode = 48

// EnsureRecipientSchema installs the $jsonSchema validator and the
// owner index on the recipients collection. Called on startup from main
// after Mongo has connected.
func EnsureRecipientSchema(ctx context.Context, db *mongo.Database) error {
	validator := bson.M{
		"$jsonSchema": bson.M{
			"bsonType": "object",
			"required": bson.A{"name", "gender", "age", "user"},
			"properties": bson.M{
				"name":           bson.M{"bsonType": "string"},
				"gender":         bson.M{"bsonType": "string"},
				"age":            bson.M{"bsonType": bson.A{"int", "long", "double"}},
				"user":           bson.M{"bsonType": "string"},
				"preferredSizes": bson.M{"bsonType": "object"},
				"likedStyles":    bson.M{"bsonType": "array", "items": bson.M{"bsonType": "string"}},
				"picture":        bson.M{"bsonType": "string"},
			},
		},
	}

	err := db.CreateCollection(ctx, recipientsCollection, options.CreateCollection().SetValidator(validator))
	if err != nil {
		var cmdErr mongo.CommandError
		if !errors.As(err, &cmdErr) || cmdErr.Code != namespaceExistsCode {
			return errors.Wrap(err, "create recipients collection")
		}
		cmd := bson.D{
			{Key: "collMod", Value: recipientsCollection},
			{Key: "validator", Value: validator},
		}
		if err := db.RunCommand(ctx, cmd).Err(); err != nil {
			return errors.Wrap(err, "update recipients validator")
		}
	}

	index := mongo.IndexModel{
		Keys: bson.D{
			{Key: "user", Value: 1},
			{Key: "createdAt", Value: -1},
		},
		Options: options.Index().SetName("idx_user_created"),
	}
	if _, err := db.Collection(recipientsCollection).Indexes().CreateOne(ctx, index); err != nil {
		return errors.Wrap(err, "create recipients index")
	}
	return nil
}
