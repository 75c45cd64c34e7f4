package databases

// go generate: mockery --name MessageDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tesipedia/tesipedia-api/models"
)

const messageName = "messages"

// MessageDatabase contains the methods to use with the messages collection
type MessageDatabase interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Message, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Message, error)
	FindPaginated(ctx context.Context, filter interface{}, limit, page int) ([]models.Message, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	InsertOne(ctx context.Context, message models.Message) (InsertOneResultHelper, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (int64, error)
}

type messageDatabase struct {
	db DatabaseHelper
}

// NewMessageDatabase initializes a new instance of message database with the provided db connection
func NewMessageDatabase(db DatabaseHelper) MessageDatabase {
	return &messageDatabase{
		db: db,
	}
}

func (m *messageDatabase) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) (*models.Message, error) {
	msg := &models.Message{}
	err := m.db.Collection(messageName).FindOne(ctx, filter, opts...).Decode(&msg)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (m *messageDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Message, error) {
	var messages []models.Message
	curr, err := m.db.Collection(messageName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer curr.Close(ctx)
	err = curr.All(ctx, &messages)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (m *messageDatabase) FindPaginated(ctx context.Context, filter interface{}, limit, page int) ([]models.Message, error) {
	opts := paginateOpts(limit, page)
	opts.SetSort(bson.M{"createdAt": -1})
	return m.Find(ctx, filter, opts)
}

func (m *messageDatabase) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return m.db.Collection(messageName).CountDocuments(ctx, filter, opts...)
}

func (m *messageDatabase) InsertOne(ctx context.Context, message models.Message) (InsertOneResultHelper, error) {
	if message.ID.IsZero() {
		message.ID = primitive.NewObjectID()
	}
	res, err := m.db.Collection(messageName).InsertOne(ctx, message)
	return res, err
}

func (m *messageDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return m.db.Collection(messageName).UpdateOne(ctx, filter, update, opts...)
}

func (m *messageDatabase) UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return m.db.Collection(messageName).UpdateMany(ctx, filter, update, opts...)
}

func (m *messageDatabase) DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (int64, error) {
	return m.db.Collection(messageName).DeleteOne(ctx, filter, opts...)
}
