package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/homestalk/internal/types"
)

// MongoSink writes enrichment results and filtered listings to MongoDB.
// Raw exports are not stored.
type MongoSink struct {
	client   *mongo.Client
	details  *mongo.Collection
	listings *mongo.Collection
	mu       sync.Mutex
	runID    string
	query    string
	count    int
	logger   *slog.Logger
}

// NewMongoSink connects to uri and verifies the connection.
func NewMongoSink(uri, database, collection string, logger *slog.Logger) (*MongoSink, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("connect: %w", err)}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("ping: %w", err)}
	}

	db := client.Database(database)
	return &MongoSink{
		client:   client,
		details:  db.Collection(collection),
		listings: db.Collection(collection + "_listings"),
		logger:   logger.With("component", "mongo_storage"),
	}, nil
}

func (s *MongoSink) Name() string { return "mongodb" }

// SetRun tags subsequent writes with the run id and query name.
func (s *MongoSink) SetRun(runID, query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = runID
	s.query = query
}

// SaveTable stores only the filtered stage; other stages are skipped.
func (s *MongoSink) SaveTable(stage, name string, t *types.Table) (string, error) {
	if stage != StageFiltered || t.Len() == 0 {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]any, len(t.Rows))
	for i, rec := range t.Rows {
		doc := bson.M{
			"_query":  name,
			"_run_id": s.runID,
			"_stored": time.Now().UTC(),
		}
		for k, v := range rec {
			doc[k] = bsonValue(v)
		}
		docs[i] = doc
	}
	if err := s.insert(s.listings, docs); err != nil {
		return "", err
	}
	return s.locator(s.listings), nil
}

// SaveDetails stores one document per detail.
func (s *MongoSink) SaveDetails(name string, details []types.ListingDetail) (string, error) {
	if len(details) == 0 {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]any, len(details))
	for i, d := range details {
		docs[i] = bson.M{
			"_query":      name,
			"_run_id":     s.runID,
			"_stored":     time.Now().UTC(),
			"url":         d.URL,
			"description": d.Description,
			"image_urls":  d.ImageURLs,
			"raw_data":    d.RawData,
		}
	}
	if err := s.insert(s.details, docs); err != nil {
		return "", err
	}
	return s.locator(s.details), nil
}

// SaveRaw is a no-op; raw exports only go to files.
func (s *MongoSink) SaveRaw(string, []byte) (string, error) { return "", nil }

func (s *MongoSink) insert(coll *mongo.Collection, docs []any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := coll.InsertMany(ctx, docs); err != nil {
		return &types.StorageError{Backend: s.Name(), Err: fmt.Errorf("insert: %w", err)}
	}
	s.count += len(docs)
	s.logger.Debug("documents stored in mongodb", "collection", coll.Name(), "count", len(docs), "total", s.count)
	return nil
}

func (s *MongoSink) locator(coll *mongo.Collection) string {
	return fmt.Sprintf("mongodb://%s/%s?run_id=%s", coll.Database().Name(), coll.Name(), s.runID)
}

func (s *MongoSink) Close() error {
	s.logger.Info("mongodb storage closing", "total_documents", s.count)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func bsonValue(v types.Value) any {
	switch v.Kind {
	case types.KindString:
		return v.Str
	case types.KindNumber:
		return v.Num
	default:
		return nil
	}
}

// --- Multi-Store Fan-Out ---

// MultiStore writes artifacts to several backends.
type MultiStore struct {
	backends []ArtifactStore
	logger   *slog.Logger
}

// NewMultiStore creates a store that fans out to backends in order.
func NewMultiStore(backends []ArtifactStore, logger *slog.Logger) *MultiStore {
	return &MultiStore{
		backends: backends,
		logger:   logger.With("component", "multi_storage"),
	}
}

func (s *MultiStore) Name() string { return "multi" }

// SetRun forwards the run tag to backends that accept it.
func (s *MultiStore) SetRun(runID, query string) {
	for _, b := range s.backends {
		if rs, ok := b.(RunScoped); ok {
			rs.SetRun(runID, query)
		}
	}
}

func (s *MultiStore) SaveTable(stage, name string, t *types.Table) (string, error) {
	return s.each(func(b ArtifactStore) (string, error) { return b.SaveTable(stage, name, t) })
}

func (s *MultiStore) SaveDetails(name string, details []types.ListingDetail) (string, error) {
	return s.each(func(b ArtifactStore) (string, error) { return b.SaveDetails(name, details) })
}

func (s *MultiStore) SaveRaw(name string, data []byte) (string, error) {
	return s.each(func(b ArtifactStore) (string, error) { return b.SaveRaw(name, data) })
}

// each calls fn on every backend. It returns the first non-empty locator
// and the first error; a failing backend does not stop the rest.
func (s *MultiStore) each(fn func(ArtifactStore) (string, error)) (string, error) {
	var (
		loc      string
		firstErr error
	)
	for _, b := range s.backends {
		l, err := fn(b)
		if err != nil {
			s.logger.Error("backend store failed", "backend", b.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if loc == "" {
			loc = l
		}
	}
	return loc, firstErr
}

func (s *MultiStore) Close() error {
	var errs []error
	for _, b := range s.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
