package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestMissingIndexes(t *testing.T) {
	digest := mongo.IndexModel{
		Keys:    bson.D{{Key: "digest", Value: 1}},
		Options: options.Index().SetName("digest"),
	}
	created := mongo.IndexModel{
		Keys:    bson.D{{Key: "created_at", Value: -1}},
		Options: options.Index().SetName("created_at"),
	}
	existing := []*mongo.IndexSpecification{{Name: "_id_"}, {Name: "digest"}}

	missing, err := missingIndexes(existing, []mongo.IndexModel{digest, created})
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "created_at", *missing[0].Options.Name)

	missing, err = missingIndexes(append(existing, &mongo.IndexSpecification{Name: "created_at"}), []mongo.IndexModel{digest, created})
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestMissingIndexesRequiresName(t *testing.T) {
	_, err := missingIndexes(nil, []mongo.IndexModel{{Keys: bson.D{{Key: "digest", Value: 1}}}})
	assert.Error(t, err)

	_, err = missingIndexes(nil, []mongo.IndexModel{{
		Keys:    bson.D{{Key: "digest", Value: 1}},
		Options: options.Index().SetName(""),
	}})
	assert.Error(t, err)
}
