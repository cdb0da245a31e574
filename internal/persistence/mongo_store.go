package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/durable/pkg/api"
)

// MongoHistoryStore keeps one document per instance holding the
// JSON-encoded events in an array. Single-document updates are atomic, so
// $push gives ordered, all-or-nothing appends.
type MongoHistoryStore struct {
	coll *mongo.Collection
}

// Ensure it implements HistoryStore.
var _ HistoryStore = (*MongoHistoryStore)(nil)

// NewMongoHistoryStore creates a Mongo-backed history store.
// dbName defaults to "durable" if empty, collName defaults to "histories".
func NewMongoHistoryStore(client *mongo.Client, dbName, collName string) *MongoHistoryStore {
	if dbName == "" {
		dbName = "durable"
	}
	if collName == "" {
		collName = "histories"
	}

	return &MongoHistoryStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

type mongoHistoryDoc struct {
	ID        string    `bson:"_id"`
	CreatedAt time.Time `bson:"created_at"`
	Events    []string  `bson:"events"`
}

func encodeEventStrings(events []api.HistoryEvent) ([]string, error) {
	encoded, err := encodeEvents(events)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(encoded))
	for i, data := range encoded {
		out[i] = string(data)
	}
	return out, nil
}

func (s *MongoHistoryStore) Create(ctx context.Context, instanceID string, started api.HistoryEvent) error {
	if err := checkStarted(started); err != nil {
		return err
	}
	events, err := encodeEventStrings(append([]api.HistoryEvent{started}))
	if err != nil {
		return err
	}

	_, err = s.coll.InsertOne(ctx, mongoHistoryDoc{
		ID:        instanceID,
		CreatedAt: time.Now().UTC(),
		Events:    events,
	})
	if mongo.IsDuplicateKeyError(err) {
		return api.ErrInstanceExists
	}
	return err
}

func (s *MongoHistoryStore) Append(ctx context.Context, instanceID string, events ...api.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}
	encoded, err := encodeEventStrings(events)
	if err != nil {
		return err
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": instanceID},
		bson.M{"$push": bson.M{"events": bson.M{"$each": encoded}}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return api.ErrInstanceNotFound
	}
	return nil
}

func (s *MongoHistoryStore) Read(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	var doc mongoHistoryDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": instanceID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, api.ErrInstanceNotFound
		}
		return nil, err
	}

	out := make([]api.HistoryEvent, 0, len(doc.Events))
	for _, data := range doc.Events {
		ev, err := DecodeEvent([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *MongoHistoryStore) Reset(ctx context.Context, instanceID string, started api.HistoryEvent, carried ...api.HistoryEvent) error {
	if err := checkStarted(started); err != nil {
		return err
	}
	events, err := encodeEventStrings(append([]api.HistoryEvent{started}, carried...))
	if err != nil {
		return err
	}

	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": instanceID},
		bson.M{"$set": bson.M{"events": events}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return api.ErrInstanceNotFound
	}
	return nil
}

func (s *MongoHistoryStore) ListInstances(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}
