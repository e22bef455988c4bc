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

	"github.com/marketgame/bridge/lib/store"
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

// SetName saves or replaces the display name for an address.
func (m *Mongo) SetName(address, name string) error {
	col := m.c.Database("game").Collection("names")

	_, err := col.UpdateOne(context.Background(),
		bson.M{"address": address}, // filter
		bson.M{"$set": bson.M{"address": address, "name": name}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("could not save name in db: %w", err)
	}

	return nil
}

// Names returns the full display-name registry keyed by address.
func (m *Mongo) Names() (map[string]string, error) {
	docs, err := m.c.Database("game").Collection("names").Find(context.Background(), bson.M{})
	if err != nil {
		return nil, fmt.Errorf("error getting names from db: %w", err)
	}

	names := map[string]string{}

	for docs.Next(context.Background()) {
		var n store.Name
		if err = bson.Unmarshal(docs.Current, &n); err == nil {
			names[n.Addr] = n.Name
		}
	}

	return names, nil
}

// LoadGame loads from db the game checkpoint.
func (m *Mongo) LoadGame() (g store.Game, err error) {
	mongoSingleResult := m.c.Database("game").Collection("checkpoint").FindOne(context.TODO(), bson.D{})
	if err = mongoSingleResult.Decode(&g); errors.Is(err, mgo.ErrNoDocuments) {
		err = store.ErrDataNotFound
	}

	return
}

// SaveGame saves to db the game checkpoint.
func (m *Mongo) SaveGame(g store.Game) (err error) {
	_, err = m.c.Database("game").Collection("checkpoint").UpdateOne(context.Background(),
		bson.D{}, // filter
		bson.D{ // update
			{
				Key: "$set", Value: bson.D{
					{Key: "price", Value: g.Price},
					{Key: "startBlock", Value: g.StartBlock},
					{Key: "endBlock", Value: g.EndBlock},
					{Key: "height", Value: g.Height},
				},
			},
		},
		options.Update().SetUpsert(true))

	return
}
