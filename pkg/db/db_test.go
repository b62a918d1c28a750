package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/grexie/audioloss/pkg/db"
	"github.com/grexie/audioloss/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MONGO_URL", "mongodb://localhost:27017/evals?retryWrites=true")
	t.Setenv("MONGO_SUPPORTS_TRANSACTIONS", "true")

	cfg := db.ConfigFromEnv()
	assert.True(t, cfg.Enabled())
	assert.True(t, cfg.Transactions)
	assert.Positive(t, cfg.Timeout)

	name, err := cfg.DatabaseName()
	require.NoError(t, err)
	assert.Equal(t, "evals", name)
}

func TestDatabaseNameDefaults(t *testing.T) {
	name, err := db.Config{URL: "mongodb://localhost:27017"}.DatabaseName()
	require.NoError(t, err)
	assert.Equal(t, "audioloss", name)

	_, err = db.Config{URL: "http://localhost"}.DatabaseName()
	assert.Error(t, err)
}

func TestConnectRequiresURL(t *testing.T) {
	_, err := db.Connect(context.Background(), db.Config{})
	assert.Error(t, err)
}

func TestEvaluations(t *testing.T) {
	if !db.Enabled() {
		t.Skip("MONGO_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := db.Connect(ctx, db.ConfigFromEnv())
	require.NoError(t, err)
	defer store.Close(ctx)

	evaluations, err := db.NewEvaluations(ctx, store)
	require.NoError(t, err)

	digest := "test-" + time.Now().Format(time.RFC3339Nano)
	defer store.Database().Collection(db.EvaluationsCollection).DeleteOne(ctx, bson.M{"digest": digest})

	result := &report.Result{
		Digest:    digest,
		Estimate:  "estimate.wav",
		Reference: "reference.wav",
		Losses:    map[string]float64{report.LossMel: 2},
		CreatedAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, evaluations.Save(ctx, result))

	result.Losses[report.LossMel] = 1
	require.NoError(t, evaluations.Save(ctx, result))

	recent, err := evaluations.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, digest, recent[0].Digest)
	assert.Equal(t, 1.0, recent[0].Losses[report.LossMel])

	assert.Error(t, evaluations.Save(ctx, &report.Result{}))
}
