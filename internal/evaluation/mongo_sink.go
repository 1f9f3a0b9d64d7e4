package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSink stores one document per bucket, replaced whenever it changes.
type MongoSink struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// NewMongoSink creates a sink writing to coll. timeout bounds each write;
// zero leaves the caller's deadline in place.
func NewMongoSink(coll *mongo.Collection, timeout time.Duration) *MongoSink {
	return &MongoSink{coll: coll, timeout: timeout}
}

// Name implements Sink.
func (s *MongoSink) Name() string { return "mongo" }

// Write replaces the document of every changed bucket in one unordered bulk
// write.
func (s *MongoSink) Write(ctx context.Context, snap Snapshot) error {
	models, err := buildMongoModels(snap, time.Now())
	if err != nil {
		return err
	}
	if len(models) == 0 {
		return nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	_, err = s.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("bulk write evaluation: %w", err)
	}
	return nil
}

func buildMongoModels(snap Snapshot, now time.Time) ([]mongo.WriteModel, error) {
	models := make([]mongo.WriteModel, 0, len(snap.Changed))
	for _, key := range snap.Changed {
		bucket, ok := snap.Buckets[key]
		if !ok {
			continue
		}

		locations := make(bson.M, len(bucket))
		for id, raw := range bucket {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("decode location %s/%s: %w", key, id, err)
			}
			locations[id] = v
		}

		doc := bson.D{
			{Key: "_id", Value: key},
			{Key: "locations", Value: locations},
			{Key: "updated_at", Value: now},
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: "_id", Value: key}}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	return models, nil
}
