package memory

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	defaultCollection = "agent_memory"
	defaultOpTimeout  = 5 * time.Second
)

// eventDocument mirrors Event with bson tags.
type eventDocument struct {
	Type      EventType `bson:"type"`
	Timestamp time.Time `bson:"timestamp"`
	Data      any       `bson:"data,omitempty"`
}

func toEventDocuments(events []Event) []eventDocument {
	docs := make([]eventDocument, len(events))
	for i, e := range events {
		docs[i] = eventDocument{Type: e.Type, Timestamp: e.Timestamp, Data: e.Data}
	}
	return docs
}

func fromEventDocuments(docs []eventDocument) []Event {
	events := make([]Event, len(docs))
	for i, d := range docs {
		events[i] = Event{Type: d.Type, Timestamp: d.Timestamp, Data: d.Data}
	}
	return events
}

type runDocument struct {
	AgentID string          `bson:"agent_id"`
	TaskID  string          `bson:"task_id"`
	Events  []eventDocument `bson:"events"`
}

// MongoOptions configures the Mongo-backed transcript store.
type MongoOptions struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoStore implements Store against a MongoDB collection, one document
// per (agentID, taskID) pair with an appended events array. Grounded on the
// teacher's features/memory/mongo/clients/mongo client ($setOnInsert +
// $push upsert pattern).
type MongoStore struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore constructs a MongoStore, creating the index LoadRun relies
// on.
func NewMongoStore(opts MongoOptions) (*MongoStore, error) {
	if opts.Client == nil {
		return nil, errors.New("memory: mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("memory: database name is required")
	}
	coll := opts.Collection
	if coll == "" {
		coll = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	s := &MongoStore{
		coll:    opts.Client.Database(opts.Database).Collection(coll),
		timeout: timeout,
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	idx := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "agent_id", Value: 1}, {Key: "task_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.coll.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.timeout)
}

// LoadRun implements Store.
func (s *MongoStore) LoadRun(ctx context.Context, agentID, taskID string) (Snapshot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"agent_id": agentID, "task_id": taskID}
	var doc runDocument
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return Snapshot{AgentID: agentID, TaskID: taskID}, nil
		}
		return Snapshot{}, err
	}
	return Snapshot{AgentID: agentID, TaskID: taskID, Events: fromEventDocuments(doc.Events)}, nil
}

// AppendEvents implements Store.
func (s *MongoStore) AppendEvents(ctx context.Context, agentID, taskID string, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"agent_id": agentID, "task_id": taskID}
	update := bson.M{
		"$setOnInsert": bson.M{"agent_id": agentID, "task_id": taskID},
		"$push":        bson.M{"events": bson.M{"$each": toEventDocuments(events)}},
	}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}
