// Package mongo implements the interface for MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mgo "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tarancss/tokenreq/lib/state"
	"github.com/tarancss/tokenreq/lib/store"
)

// Database and collection holding one snapshot document per organization, keyed by the organization name.
const (
	Database   = "tokenreq"
	Collection = "state"
)

// Mongo implements a connection to a MongoDB database.
type Mongo struct {
	c *mgo.Client
}

// New returns a Mongo client connection to the specified MongoDB database uri.
func New(uri string) (*Mongo, error) {
	// get a client
	c, err := mgo.NewClient(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongo DB in %s: %w", uri, err)
	}
	// connect client
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	err = c.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongo DB: %w", err)
	}

	return &Mongo{c: c}, nil
}

// CloseMongo will close a database connection. Must be called at termination time.
func (m *Mongo) CloseMongo() error {
	return m.c.Disconnect(context.Background())
}

func (m *Mongo) col() *mgo.Collection {
	return m.c.Database(Database).Collection(Collection)
}

// LoadState loads from db the snapshot of the organization.
func (m *Mongo) LoadState(ctx context.Context, org string) (snap state.Snapshot, err error) {
	sr := m.col().FindOne(ctx, bson.M{"_id": org})
	if err = sr.Decode(&snap); errors.Is(err, mgo.ErrNoDocuments) {
		err = store.ErrDataNotFound
	}

	return
}

// SaveState saves to db the snapshot of the organization.
func (m *Mongo) SaveState(ctx context.Context, org string, snap state.Snapshot) (err error) {
	_, err = m.col().UpdateOne(ctx,
		bson.M{"_id": org}, // filter
		bson.D{ // update
			{
				Key: "$set", Value: bson.D{
					{Key: "account", Value: snap.Account},
					{Key: "isSyncing", Value: snap.IsSyncing},
					{Key: "orgTokens", Value: snap.OrgTokens},
					{Key: "acceptedTokens", Value: snap.AcceptedTokens},
					{Key: "requests", Value: snap.Requests},
					{Key: "lastBlock", Value: int64(snap.LastBlock)},
					{Key: "updated", Value: time.Now()},
				},
			},
		},
		options.Update().SetUpsert(true))

	return
}

// DeleteState deletes from db the snapshot of the organization.
func (m *Mongo) DeleteState(ctx context.Context, org string) error {
	res, err := m.col().DeleteOne(ctx, bson.M{"_id": org}, options.Delete())
	if err == nil && res.DeletedCount != 1 {
		err = store.ErrDataNotFound
	}

	return err
}
