package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"casbot/internal/roster/models"
	"casbot/pkg/platform/sentinel"
	"casbot/pkg/requestcontext"
)

// CollectionUsers holds one document per verified member. The field names
// are shared with the CAS portal and must not change.
const CollectionUsers = "users"

type identityDocument struct {
	DiscordID  string    `bson:"discordId"`
	Name       string    `bson:"name"`
	Email      string    `bson:"email"`
	RollNo     string    `bson:"rollno"`
	VerifiedAt time.Time `bson:"verifiedAt,omitempty"`
}

// MongoStore persists the roster in MongoDB.
type MongoStore struct {
	users *mongo.Collection
}

// NewMongo wraps the users collection of db.
func NewMongo(db *mongo.Database) *MongoStore {
	return &MongoStore{users: db.Collection(CollectionUsers)}
}

// EnsureIndexes creates the unique discordId index and the rollno lookup index.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "discordId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("discordId_unique"),
		},
		{
			Keys:    bson.D{{Key: "rollno", Value: 1}},
			Options: options.Index().SetName("rollno"),
		},
	})
	if err != nil {
		return fmt.Errorf("create roster indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByPlatformID(ctx context.Context, platformID string) (*models.Identity, error) {
	return s.findOne(ctx, bson.D{{Key: "discordId", Value: platformID}})
}

func (s *MongoStore) FindBySecondaryKey(ctx context.Context, rollNo string) (*models.Identity, error) {
	return s.findOne(ctx, bson.D{{Key: "rollno", Value: rollNo}})
}

func (s *MongoStore) Upsert(ctx context.Context, identity models.Identity) error {
	if identity.PlatformID == "" {
		return fmt.Errorf("upsert identity: platform id is required")
	}
	verifiedAt := identity.VerifiedAt
	if verifiedAt.IsZero() {
		verifiedAt = requestcontext.Now(ctx)
	}

	_, err := s.users.UpdateOne(ctx,
		bson.D{{Key: "discordId", Value: identity.PlatformID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "name", Value: identity.Name},
			{Key: "email", Value: identity.Email},
			{Key: "rollno", Value: identity.RollNo},
			{Key: "verifiedAt", Value: verifiedAt.UTC()},
		}}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.D) (*models.Identity, error) {
	var doc identityDocument
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("identity: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find identity: %w", err)
	}
	return &models.Identity{
		PlatformID: doc.DiscordID,
		Name:       doc.Name,
		Email:      doc.Email,
		RollNo:     doc.RollNo,
		VerifiedAt: doc.VerifiedAt,
	}, nil
}
