package run

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	defaultCollection = "runs"
	defaultOpTimeout  = 5 * time.Second
)

// mongoRecord mirrors Record with bson tags, matching the teacher's
// features/run/mongo/store.go collection/upsert-by-id conventions.
type mongoRecord struct {
	TaskID    string            `bson:"_id"`
	AgentID   string            `bson:"agent_id"`
	Status    Status            `bson:"status"`
	StartedAt time.Time         `bson:"started_at"`
	UpdatedAt time.Time         `bson:"updated_at"`
	Labels    map[string]string `bson:"labels,omitempty"`
	Metadata  map[string]any    `bson:"metadata,omitempty"`
}

func toMongoRecord(r Record) mongoRecord {
	return mongoRecord{
		TaskID:    r.TaskID,
		AgentID:   r.AgentID,
		Status:    r.Status,
		StartedAt: r.StartedAt,
		UpdatedAt: r.UpdatedAt,
		Labels:    r.Labels,
		Metadata:  r.Metadata,
	}
}

func (m mongoRecord) toRecord() Record {
	return Record{
		TaskID:    m.TaskID,
		AgentID:   m.AgentID,
		Status:    m.Status,
		StartedAt: m.StartedAt,
		UpdatedAt: m.UpdatedAt,
		Labels:    m.Labels,
		Metadata:  m.Metadata,
	}
}

// MongoOptions configures the Mongo-backed run store.
type MongoOptions struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// MongoStore implements Store against a MongoDB collection.
type MongoStore struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore constructs a MongoStore, creating the index ListByAgent
// relies on.
func NewMongoStore(opts MongoOptions) (*MongoStore, error) {
	if opts.Client == nil {
		return nil, errors.New("run: mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("run: database name is required")
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
		Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "started_at", Value: -1}},
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

// Upsert implements Store.
func (s *MongoStore) Upsert(ctx context.Context, record Record) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": record.TaskID}, toMongoRecord(record), options.Replace().SetUpsert(true))
	return err
}

// Load implements Store.
func (s *MongoStore) Load(ctx context.Context, taskID string) (Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var m mongoRecord
	if err := s.coll.FindOne(ctx, bson.M{"_id": taskID}).Decode(&m); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return m.toRecord(), nil
}

// ListByAgent implements Store.
func (s *MongoStore) ListByAgent(ctx context.Context, agentID string) ([]Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}})
	cur, err := s.coll.Find(ctx, bson.M{"agent_id": agentID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []Record
	for cur.Next(ctx) {
		var m mongoRecord
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, m.toRecord())
	}
	return out, cur.Err()
}
