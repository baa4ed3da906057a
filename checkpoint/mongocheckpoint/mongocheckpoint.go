// Package mongocheckpoint implements checkpoint.Sink on top of
// go.mongodb.org/mongo-driver/v2, grounded on the teacher's
// features/memory/mongo durable-store pattern (one document per run, keyed
// by run ID, upserted via ReplaceOne).
package mongocheckpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/roma-engine/roma/checkpoint"
)

const defaultCollection = "roma_checkpoints"
const defaultTimeout = 5 * time.Second

// Sink stores one document per run, keyed by run_id.
type Sink struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// Options configures Sink.
type Options struct {
	Client     *mongo.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// New builds a Sink backed by opts.Client, ensuring a unique index on
// run_id, mirroring the teacher's ensureIndexes step.
func New(ctx context.Context, opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collection)
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ictx, index); err != nil {
		return nil, fmt.Errorf("ensure run_id index: %w", err)
	}
	return &Sink{coll: coll, timeout: timeout}, nil
}

type document struct {
	RunID     string               `bson:"run_id"`
	Record    checkpoint.RunRecord `bson:"record"`
	UpdatedAt time.Time            `bson:"updated_at"`
}

// Write implements checkpoint.Sink via an upsert keyed by run_id.
func (s *Sink) Write(ctx context.Context, rr checkpoint.RunRecord) error {
	if rr.RunID == "" {
		return errors.New("run id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	doc := document{RunID: rr.RunID, Record: rr, UpdatedAt: time.Now().UTC()}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"run_id": rr.RunID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert checkpoint %q: %w", rr.RunID, err)
	}
	return nil
}

// Read implements checkpoint.Sink.
func (s *Sink) Read(ctx context.Context, runID string) (checkpoint.RunRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var doc document
	err := s.coll.FindOne(ctx, bson.M{"run_id": runID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return checkpoint.RunRecord{}, false, nil
	}
	if err != nil {
		return checkpoint.RunRecord{}, false, fmt.Errorf("find checkpoint %q: %w", runID, err)
	}
	return doc.Record, true, nil
}
