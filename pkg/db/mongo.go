package db

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const (
	defaultDatabase = "audioloss"
	defaultTimeout  = 10 * time.Second
)

// Config selects the MongoDB deployment evaluations are recorded in.
type Config struct {
	URL          string
	Transactions bool
	Timeout      time.Duration
}

// ConfigFromEnv reads MONGO_URL and MONGO_SUPPORTS_TRANSACTIONS.
func ConfigFromEnv() Config {
	return Config{
		URL:          os.Getenv("MONGO_URL"),
		Transactions: os.Getenv("MONGO_SUPPORTS_TRANSACTIONS") == "true",
		Timeout:      defaultTimeout,
	}
}

func (c Config) Enabled() bool { return c.URL != "" }

// Enabled reports whether MONGO_URL is configured.
func Enabled() bool { return ConfigFromEnv().Enabled() }

// DatabaseName is the database named in the connection string path, or
// audioloss when the path is empty.
func (c Config) DatabaseName() (string, error) {
	cs, err := connstring.ParseAndValidate(c.URL)
	if err != nil {
		return "", fmt.Errorf("invalid MONGO_URL: %w", err)
	}
	if cs.Database == "" {
		return defaultDatabase, nil
	}
	return cs.Database, nil
}

// Store is a connected database plus the transaction policy to write with.
type Store struct {
	db           *mongo.Database
	transactions bool
}

// Connect dials cfg.URL and waits for the primary to answer a ping.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("MONGO_URL is not set")
	}
	name, err := cfg.DatabaseName()
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	opts := options.Client().
		ApplyURI(cfg.URL).
		SetAppName("audioloss").
		SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo did not answer: %w", err)
	}

	log.Debugf("connected to mongo database %s", name)
	return &Store{db: client.Database(name), transactions: cfg.Transactions}, nil
}

func (s *Store) Database() *mongo.Database { return s.db }

func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// missingIndexes returns the models whose names are not among existing. Every
// model must carry a name, which is what existing indexes are matched by.
func missingIndexes(existing []*mongo.IndexSpecification, models []mongo.IndexModel) ([]mongo.IndexModel, error) {
	have := make(map[string]bool, len(existing))
	for _, spec := range existing {
		have[spec.Name] = true
	}

	var missing []mongo.IndexModel
	for _, m := range models {
		if m.Options == nil || m.Options.Name == nil || *m.Options.Name == "" {
			return nil, fmt.Errorf("index on %v has no name", m.Keys)
		}
		if !have[*m.Options.Name] {
			missing = append(missing, m)
		}
	}
	return missing, nil
}

// ensureIndexes creates whichever of models the collection lacks, in one call.
func (s *Store) ensureIndexes(ctx context.Context, collection string, models ...mongo.IndexModel) error {
	idxs := s.db.Collection(collection).Indexes()
	existing, err := idxs.ListSpecifications(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexes on %s: %w", collection, err)
	}

	missing, err := missingIndexes(existing, models)
	if err != nil {
		return fmt.Errorf("%s: %w", collection, err)
	}
	if len(missing) == 0 {
		return nil
	}

	names, err := idxs.CreateMany(ctx, missing)
	if err != nil {
		return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
	}
	log.Infof("created indexes %v on %s", names, collection)
	return nil
}

// write runs fn inside a session transaction when the deployment supports
// them, and directly otherwise.
func (s *Store) write(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions {
		return fn(ctx)
	}
	return s.db.Client().UseSession(ctx, func(sc mongo.SessionContext) error {
		_, err := sc.WithTransaction(sc, func(tc mongo.SessionContext) (any, error) {
			return nil, fn(tc)
		})
		return err
	})
}
