package cache_test

import (
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/grexie/audioloss/pkg/audio"
	"github.com/grexie/audioloss/pkg/cache"
	"github.com/grexie/audioloss/pkg/loss"
	"github.com/grexie/audioloss/pkg/report"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
)

var db *leveldb.DB

func TestMain(m *testing.M) {
	path := fmt.Sprintf("%s/audioloss-cache.db-test", os.TempDir())
	if err := os.RemoveAll(path); err != nil {
		log.Fatalf("failed to remove %s", path)
	} else if d, err := leveldb.OpenFile(path, nil); err != nil {
		log.Fatalf("failed to open %s: %v", path, err)
	} else {
		db = d
	}
	code := m.Run()
	db.Close()
	os.RemoveAll(path)
	os.Exit(code)
}

func clip(values ...float64) *audio.Clip {
	return &audio.Clip{Samples: [][]float64{values}, SampleRate: 16000}
}

func TestDigest(t *testing.T) {
	params := loss.NewParamsFromDefaults()
	a := cache.Digest(params, clip(0, 0.5, 1), clip(0, 0.25, 1))

	assert.Len(t, a, 64)
	assert.Equal(t, a, cache.Digest(params, clip(0, 0.5, 1), clip(0, 0.25, 1)))
	assert.NotEqual(t, a, cache.Digest(params, clip(0, 0.25, 1), clip(0, 0.5, 1)))

	params.ClampEps = 1e-3
	assert.NotEqual(t, a, cache.Digest(params, clip(0, 0.5, 1), clip(0, 0.25, 1)))
}

func TestPutGet(t *testing.T) {
	c := cache.New(db)

	missing, err := c.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	now := time.Now().UTC().Truncate(time.Millisecond)
	first := &report.Result{
		Digest:    "first",
		Estimate:  "a.wav",
		Reference: "b.wav",
		Losses:    map[string]float64{report.LossMel: 1.5},
		CreatedAt: now,
	}
	second := &report.Result{
		Digest:    "second",
		Losses:    map[string]float64{report.LossMel: 0.5},
		CreatedAt: now.Add(-time.Minute),
	}
	require.NoError(t, c.Put(first))
	require.NoError(t, c.Put(second))

	got, err := c.Get("first")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "a.wav", got.Estimate)
	assert.Equal(t, 1.5, got.Losses[report.LossMel])
	assert.True(t, now.Equal(got.CreatedAt))

	results, err := c.Results()
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "second", results[0].Digest)
	assert.Equal(t, "first", results[1].Digest)
}

func TestPutRejectsInvalidResults(t *testing.T) {
	c := cache.New(db)

	assert.Error(t, c.Put(&report.Result{Losses: map[string]float64{}}))
	assert.Error(t, c.Put(&report.Result{
		Digest: "perfect",
		Losses: map[string]float64{report.LossSISDR: math.Inf(-1)},
	}))
}
