package db

import (
	"context"
	"fmt"

	"github.com/grexie/audioloss/pkg/report"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const EvaluationsCollection = "evaluations"

// Evaluations records comparison results.
type Evaluations struct {
	store *Store
}

func NewEvaluations(ctx context.Context, store *Store) (*Evaluations, error) {
	err := store.ensureIndexes(ctx, EvaluationsCollection,
		mongo.IndexModel{
			Keys:    bson.D{{Key: "digest", Value: 1}},
			Options: options.Index().SetName("digest").SetUnique(true),
		},
		mongo.IndexModel{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("created_at"),
		},
	)
	if err != nil {
		return nil, err
	}
	return &Evaluations{store: store}, nil
}

func (e *Evaluations) collection() *mongo.Collection {
	return e.store.Database().Collection(EvaluationsCollection)
}

// Save upserts result by digest.
func (e *Evaluations) Save(ctx context.Context, result *report.Result) error {
	if result.Digest == "" {
		return fmt.Errorf("result has no digest")
	}

	err := e.store.write(ctx, func(ctx context.Context) error {
		_, err := e.collection().UpdateOne(ctx,
			bson.M{"digest": result.Digest},
			bson.M{"$set": result},
			options.Update().SetUpsert(true))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save evaluation %s: %w", result.Digest, err)
	}
	return nil
}

// Recent returns up to limit results, newest first.
func (e *Evaluations) Recent(ctx context.Context, limit int64) ([]report.Result, error) {
	cur, err := e.collection().Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluations: %w", err)
	}
	defer cur.Close(ctx)

	out := []report.Result{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode evaluations: %w", err)
	}
	return out, nil
}
