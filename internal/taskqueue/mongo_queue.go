package taskqueue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoQueue implements Queue on top of MongoDB.
//
// Collection schema:
//
//	{
//	  _id:        string,    // task ID
//	  payload:    []byte,    // gob-encoded Task
//	  created_at: time.Time,
//	  not_before: int64,     // unix nanoseconds
//	}
//
// Due documents are claimed with FindOneAndDelete, which is atomic.
type MongoQueue struct {
	coll         *mongo.Collection
	pollInterval time.Duration
}

// NewMongoQueue creates a Mongo-backed queue.
// dbName defaults to "durable", collName to "queue_tasks".
func NewMongoQueue(client *mongo.Client, dbName, collName string) *MongoQueue {
	if dbName == "" {
		dbName = "durable"
	}
	if collName == "" {
		collName = "queue_tasks"
	}
	return &MongoQueue{
		coll:         client.Database(dbName).Collection(collName),
		pollInterval: 100 * time.Millisecond,
	}
}

// Ensure MongoQueue implements Queue.
var _ Queue = (*MongoQueue)(nil)

type mongoQueueDoc struct {
	ID        string    `bson:"_id"`
	Payload   []byte    `bson:"payload"`
	CreatedAt time.Time `bson:"created_at"`
	NotBefore int64     `bson:"not_before"`
}

// Enqueue inserts a document for the given Task.
func (q *MongoQueue) Enqueue(ctx context.Context, t Task) error {
	prepare(&t)
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}

	_, err = q.coll.InsertOne(ctx, mongoQueueDoc{
		ID:        t.ID,
		Payload:   data,
		CreatedAt: t.EnqueuedAt.UTC(),
		NotBefore: t.NotBefore.UnixNano(),
	})
	return err
}

// Dequeue blocks (via polling) until a task is available or ctx is cancelled.
func (q *MongoQueue) Dequeue(ctx context.Context) (*Task, error) {
	tmr := newStoppedTimer()
	defer tmr.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		filter := bson.M{"not_before": bson.M{"$lte": time.Now().UnixNano()}}
		opts := options.FindOneAndDelete().
			SetSort(bson.D{{Key: "not_before", Value: 1}, {Key: "created_at", Value: 1}})

		var doc mongoQueueDoc
		err := q.coll.FindOneAndDelete(ctx, filter, opts).Decode(&doc)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				if err := sleep(ctx, tmr, q.pollInterval); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		task, err := DecodeTask(doc.Payload)
		if err != nil {
			return nil, err
		}
		task.Attempts++
		return task, nil
	}
}

// Len returns an approximate number of queued tasks.
func (q *MongoQueue) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := q.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		slog.Default().Warn("mongo queue length failed", slog.Any("error", err))
		return 0
	}
	return int(n)
}
