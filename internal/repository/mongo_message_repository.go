package repository

import (
	"context"
	"fmt"

	"pitchhub-relay/internal/domain/message"
	relay_errors "pitchhub-relay/pkg/errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// messageCollection is the part of *mongo.Collection the relay writes through.
type messageCollection interface {
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
}

type mongoPinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

type MongoMessageRepository struct {
	client     mongoPinger
	collection messageCollection
}

func NewMongoMessageRepository(client *mongo.Client, database, collection string) *MongoMessageRepository {
	return &MongoMessageRepository{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}
}

func (r *MongoMessageRepository) Create(ctx context.Context, m *message.Message) error {
	res, err := r.collection.InsertOne(ctx, m)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return relay_errors.ErrAlreadyExists
		}
		return err
	}

	id, err := insertedIDString(res.InsertedID)
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

func (r *MongoMessageRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

func insertedIDString(v any) (string, error) {
	switch id := v.(type) {
	case bson.ObjectID:
		return id.Hex(), nil
	case string:
		return id, nil
	default:
		return "", fmt.Errorf("unexpected inserted id type %T", v)
	}
}
