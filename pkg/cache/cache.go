package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/grexie/audioloss/pkg/audio"
	"github.com/grexie/audioloss/pkg/loss"
	"github.com/grexie/audioloss/pkg/report"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const resultPrefix = "result-"

// Cache stores comparison results in leveldb, keyed by a digest of the
// compared audio and the loss configuration.
type Cache struct {
	db *leveldb.DB
}

func Open(path string) (*Cache, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache %s: %w", path, err)
	}
	return &Cache{db: db}, nil
}

func New(db *leveldb.DB) *Cache {
	return &Cache{db: db}
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Digest identifies a comparison of estimate against reference under params.
func Digest(params loss.Params, estimate, reference *audio.Clip) string {
	h := sha256.New()
	fmt.Fprintf(h, "%+v\n", params)

	buf := make([]byte, 8)
	for _, clip := range []*audio.Clip{estimate, reference} {
		binary.LittleEndian.PutUint64(buf, uint64(clip.SampleRate))
		h.Write(buf)
		binary.LittleEndian.PutUint64(buf, uint64(clip.Channels()))
		h.Write(buf)
		for _, ch := range clip.Samples {
			binary.LittleEndian.PutUint64(buf, uint64(len(ch)))
			h.Write(buf)
			for _, v := range ch {
				binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
				h.Write(buf)
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for digest, or nil when there is none.
func (c *Cache) Get(digest string) (*report.Result, error) {
	data, err := c.db.Get([]byte(resultPrefix+digest), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read cached result %s: %w", digest, err)
	}

	var result report.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cached result %s: %w", digest, err)
	}
	return &result, nil
}

func (c *Cache) Put(result *report.Result) error {
	if result.Digest == "" {
		return fmt.Errorf("result has no digest")
	}
	if !result.Finite() {
		return fmt.Errorf("result %s holds non-finite losses", result.Digest)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result %s: %w", result.Digest, err)
	}
	return c.db.Put([]byte(resultPrefix+result.Digest), data, nil)
}

// Results returns every cached result, oldest first.
func (c *Cache) Results() ([]report.Result, error) {
	iter := c.db.NewIterator(util.BytesPrefix([]byte(resultPrefix)), nil)
	defer iter.Release()

	out := []report.Result{}
	for iter.Next() {
		var result report.Result
		if err := json.Unmarshal(iter.Value(), &result); err != nil {
			continue
		}
		out = append(out, result)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache: %w", err)
	}

	slices.SortFunc(out, func(a, b report.Result) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}
