// Package mongo implements trigger.Store on top of MongoDB, grounded on the
// teacher's features/run/mongo/store.go and features/session/mongo/store.go
// (collection-per-concern, per-call timeout, upsert-by-id conventions),
// using go.mongodb.org/mongo-driver/v2 (matching goa-ai's own driver
// version).
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/goadesign/agentrun/trigger"
)

const (
	defaultTriggersCollection   = "triggers"
	defaultExecutionsCollection = "trigger_executions"
	defaultOpTimeout            = 5 * time.Second
)

// Options configures the Mongo-backed trigger store.
type Options struct {
	Client               *mongodriver.Client
	Database             string
	TriggersCollection   string
	ExecutionsCollection string
	Timeout              time.Duration
}

// Store implements trigger.Store against MongoDB collections.
type Store struct {
	triggers   *mongodriver.Collection
	executions *mongodriver.Collection
	timeout    time.Duration
}

var _ trigger.Store = (*Store)(nil)

// New constructs a Store, creating the indexes ListTriggers/
// GetTriggerByWebhookID/CountExecutionsSince rely on.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("trigger/store/mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("trigger/store/mongo: database name is required")
	}
	triggersColl := opts.TriggersCollection
	if triggersColl == "" {
		triggersColl = defaultTriggersCollection
	}
	execColl := opts.ExecutionsCollection
	if execColl == "" {
		execColl = defaultExecutionsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	db := opts.Client.Database(opts.Database)
	s := &Store{
		triggers:   db.Collection(triggersColl),
		executions: db.Collection(execColl),
		timeout:    timeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	webhookIdx := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "webhook.webhook_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	}
	if _, err := s.triggers.Indexes().CreateOne(ctx, webhookIdx); err != nil {
		return err
	}
	execIdx := mongodriver.IndexModel{
		Keys: bson.D{{Key: "trigger_id", Value: 1}, {Key: "executed_at", Value: -1}},
	}
	statusIdx := mongodriver.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}},
	}
	_, err := s.executions.Indexes().CreateMany(ctx, []mongodriver.IndexModel{execIdx, statusIdx})
	return err
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) SaveTrigger(ctx context.Context, t *trigger.Trigger) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.triggers.ReplaceOne(ctx, bson.M{"_id": t.ID}, t, options.Replace().SetUpsert(true))
	return err
}

func (s *Store) GetTrigger(ctx context.Context, id string) (*trigger.Trigger, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var t trigger.Trigger
	if err := s.triggers.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, trigger.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetTriggerByWebhookID(ctx context.Context, webhookID string) (*trigger.Trigger, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var t trigger.Trigger
	if err := s.triggers.FindOne(ctx, bson.M{"webhook.webhook_id": webhookID}).Decode(&t); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, trigger.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *Store) DeleteTrigger(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.triggers.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return trigger.ErrNotFound
	}
	return nil
}

func (s *Store) ListTriggers(ctx context.Context) ([]*trigger.Trigger, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.triggers.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*trigger.Trigger
	for cur.Next(ctx) {
		var t trigger.Trigger
		if err := cur.Decode(&t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, cur.Err()
}

func (s *Store) AppendExecution(ctx context.Context, e *trigger.Execution) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.executions.InsertOne(ctx, e)
	return err
}

func (s *Store) CountExecutionsSince(ctx context.Context, triggerID string, since time.Time) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.executions.CountDocuments(ctx, bson.M{
		"trigger_id":  triggerID,
		"executed_at": bson.M{"$gte": since},
	})
	return int(n), err
}

func (s *Store) ListExecutions(ctx context.Context, triggerID string, limit int) ([]*trigger.Execution, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "executed_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.executions.Find(ctx, bson.M{"trigger_id": triggerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*trigger.Execution
	for cur.Next(ctx) {
		var e trigger.Execution
		if err := cur.Decode(&e); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, cur.Err()
}

func (s *Store) DeleteExecutions(ctx context.Context, triggerID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.executions.DeleteMany(ctx, bson.M{"trigger_id": triggerID})
	return err
}
