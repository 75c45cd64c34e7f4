package databases

// go generate: mockery --name OrderDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo/options"
)

const orderName = "orders"

// OrderDatabase contains the methods to use with the orders collection. The
// chat subsystem only ever checks that an order links a writer and a client.
type OrderDatabase interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

type orderDatabase struct {
	db DatabaseHelper
}

// NewOrderDatabase initializes a new instance of order database with the provided db connection
func NewOrderDatabase(db DatabaseHelper) OrderDatabase {
	return &orderDatabase{
		db: db,
	}
}

func (o *orderDatabase) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return o.db.Collection(orderName).CountDocuments(ctx, filter, opts...)
}
