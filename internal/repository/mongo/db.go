package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second
)

// ConnectDB opens a client for uri and verifies it can reach a primary.
// Parent deletes run in a transaction, so the deployment must be a replica set.
func ConnectDB(ctx context.Context, uri, appName string) (*mongo.Client, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetAppName(appName).
		SetServerSelectionTimeout(connectTimeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, errors.Join(fmt.Errorf("mongo ping: %w", err), DisconnectDB(client))
	}
	return client, nil
}

// DisconnectDB closes the client, waiting at most connectTimeout for in-flight operations.
func DisconnectDB(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return client.Disconnect(ctx)
}

// Health adapts a client to repository.Pinger.
type Health struct {
	Client *mongo.Client
}

func (h Health) Ping(ctx context.Context) error {
	return h.Client.Ping(ctx, readpref.Primary())
}
