// Package mongo implements the DocumentStore against MongoDB. The atomic
// conditional upsert and the sequence counters both map to single
// FindOneAndUpdate round trips, which is what the write path's correctness
// rests on.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/convsync/sync-service/internal/config"
	"github.com/convsync/sync-service/internal/model"
	registrystore "github.com/convsync/sync-service/internal/registry/store"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const countersCollection = "counters"

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrystore.DocumentStore, error) {
			cfg := config.FromContext(ctx)
			opts := options.Client().ApplyURI(cfg.DBURL)
			if cfg.DBMaxOpenConns > 0 {
				opts.SetMaxPoolSize(uint64(cfg.DBMaxOpenConns))
			}
			if cfg.DBMaxIdleConns > 0 {
				opts.SetMinPoolSize(uint64(cfg.DBMaxIdleConns))
			}
			client, err := mongo.Connect(opts)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			if err := client.Ping(ctx, nil); err != nil {
				return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
			}
			return &mongoStore{
				client: client,
				db:     client.Database(cfg.DBName),
			}, nil
		},
	})
}

type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func (s *mongoStore) FindOne(ctx context.Context, collection, id string) (model.Document, error) {
	var doc model.Document
	err := s.db.Collection(collection).FindOne(ctx, bson.M{model.FieldID: id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &registrystore.NotFoundError{Collection: collection, ID: id}
	}
	if err != nil {
		return nil, &registrystore.RetryableError{Op: "mongo find one", Err: err}
	}
	return doc, nil
}

func (s *mongoStore) Upsert(ctx context.Context, collection, id string, set, setOnInsert model.Fields, unset []string) (model.Document, error) {
	update := bson.M{
		"$set":         bson.M(set),
		"$setOnInsert": bson.M(setOnInsert),
		"$inc":         bson.M{model.FieldRev: 1},
	}
	if len(unset) > 0 {
		fields := bson.M{}
		for _, f := range unset {
			fields[f] = ""
		}
		update["$unset"] = fields
	}

	var doc model.Document
	err := s.db.Collection(collection).FindOneAndUpdate(
		ctx, bson.M{model.FieldID: id}, update,
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, &registrystore.RetryableError{Op: "mongo upsert", Err: err}
	}
	return doc, nil
}

func (s *mongoStore) Find(ctx context.Context, collection string, q registrystore.Query) ([]model.Document, error) {
	findOpts := options.Find()
	if len(q.Projection) > 0 {
		proj := bson.D{}
		for k, v := range q.Projection {
			proj = append(proj, bson.E{Key: k, Value: v})
		}
		findOpts.SetProjection(proj)
	}
	if len(q.Sort) > 0 {
		sortDoc := bson.D{}
		for _, f := range q.Sort {
			dir := 1
			if f.Desc {
				dir = -1
			}
			sortDoc = append(sortDoc, bson.E{Key: f.Field, Value: dir})
		}
		findOpts.SetSort(sortDoc)
	}
	if q.Limit > 0 {
		findOpts.SetLimit(q.Limit)
	}

	selector := q.Selector
	if selector == nil {
		selector = map[string]any{}
	}
	cursor, err := s.db.Collection(collection).Find(ctx, bson.M(selector), findOpts)
	if err != nil {
		return nil, &registrystore.RetryableError{Op: "mongo find", Err: err}
	}
	var docs []model.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, &registrystore.RetryableError{Op: "mongo find", Err: err}
	}
	return docs, nil
}

func (s *mongoStore) SoftDelete(ctx context.Context, collection, id string) (model.Document, error) {
	var doc model.Document
	err := s.db.Collection(collection).FindOneAndUpdate(
		ctx,
		bson.M{model.FieldID: id},
		bson.M{
			"$set": bson.M{
				model.FieldDeleted:   true,
				model.FieldUpdatedAt: model.FormatTime(time.Now()),
			},
			"$inc": bson.M{model.FieldRev: 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &registrystore.NotFoundError{Collection: collection, ID: id}
	}
	if err != nil {
		return nil, &registrystore.RetryableError{Op: "mongo soft delete", Err: err}
	}
	return doc, nil
}

func (s *mongoStore) NextSeq(ctx context.Context, partitionKey string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(countersCollection).FindOneAndUpdate(
		ctx,
		bson.M{model.FieldID: partitionKey},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		// The write must not proceed without a sequence; surface as
		// retryable so the client can resubmit.
		return 0, &registrystore.RetryableError{Op: "mongo next seq", Err: err}
	}
	return counter.Seq, nil
}

func (s *mongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
