// Package mongo stores expenses in MongoDB.
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

// Client wraps the driver client together with the database it serves.
type Client struct {
	*mongo.Client
	dbName string
}

type Config struct {
	URI      string        // e.g. mongodb://localhost:27017
	Database string
	Timeout  time.Duration // connect and ping timeout, default 10s
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("MongoDB URI cannot be empty")
	}
	if cfg.Database == "" {
		return nil, errors.New("database name cannot be empty")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	return &Client{Client: client, dbName: cfg.Database}, nil
}

func (c *Client) Close(ctx context.Context) error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Disconnect(ctx)
}

func (c *Client) Database() *mongo.Database {
	if c.Client == nil {
		return nil
	}
	return c.Client.Database(c.dbName)
}

func (c *Client) Ping(ctx context.Context) error {
	if c.Client == nil {
		return errors.New("MongoDB client is not initialized")
	}
	return c.Client.Ping(ctx, readpref.Primary())
}
