package mongo

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/convsync/sync-service/internal/config"
	"github.com/convsync/sync-service/internal/model"
	registrymigrate "github.com/convsync/sync-service/internal/registry/migrate"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func init() {
	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &mongoMigrator{}})
}

// mongoMigrator creates the sync collections and their indexes.
type mongoMigrator struct{}

func (m *mongoMigrator) Name() string { return "mongo-schema" }

func (m *mongoMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.DatastoreType != "mongo" {
		return nil // skip if not using mongo
	}

	log.Info("Running migration", "name", m.Name())
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.DBURL))
	if err != nil {
		return fmt.Errorf("mongo migration: failed to connect: %w", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(cfg.DBName)

	collections := map[string][]mongo.IndexModel{
		model.Conversations.Name: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: model.FieldUpdatedAt, Value: -1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: model.FieldServerSeq, Value: 1}}},
			{Keys: bson.D{{Key: model.FieldDeleted, Value: 1}}},
		},
		model.Messages.Name: {
			{Keys: bson.D{{Key: "conv_id", Value: 1}, {Key: model.FieldUpdatedAt, Value: -1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: model.FieldUpdatedAt, Value: -1}}},
			{Keys: bson.D{{Key: "conv_id", Value: 1}, {Key: model.FieldServerSeq, Value: 1}}},
			{Keys: bson.D{{Key: model.FieldDeleted, Value: 1}}},
		},
	}

	for name, indexes := range collections {
		coll := db.Collection(name)
		if len(indexes) > 0 {
			if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
				return fmt.Errorf("mongo migration: indexes for %s: %w", name, err)
			}
		}
	}
	return nil
}
