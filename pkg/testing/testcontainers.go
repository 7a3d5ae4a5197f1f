package testing

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDBContainer wraps a single-node replica set, which the
// transactional outbox and session transactions need.
type MongoDBContainer struct {
	Container *mongodb.MongoDBContainer
	URI       string
}

// NewMongoDBContainer creates a new MongoDB testcontainer
func NewMongoDBContainer(ctx context.Context) (*MongoDBContainer, error) {
	mongoContainer, err := mongodb.Run(ctx,
		"mongo:7",
		mongodb.WithReplicaSet("rs0"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start mongodb container: %w", err)
	}

	uri, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		_ = mongoContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &MongoDBContainer{
		Container: mongoContainer,
		URI:       uri,
	}, nil
}

// Close terminates the MongoDB container
func (m *MongoDBContainer) Close(ctx context.Context) error {
	if m.Container != nil {
		return m.Container.Terminate(ctx)
	}
	return nil
}

// GetClient creates a MongoDB client connected to the test container
func (m *MongoDBContainer) GetClient(ctx context.Context) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(m.URI).SetDirect(true))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return client, nil
}

// PostgresContainer wraps a testcontainers Postgres instance
type PostgresContainer struct {
	Container *postgres.PostgresContainer
	DSN       string
}

// NewPostgresContainer starts postgres:15-alpine and waits for it to accept connections.
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("replenishment"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{Container: container, DSN: dsn}, nil
}

// Close terminates the Postgres container
func (p *PostgresContainer) Close(ctx context.Context) error {
	if p.Container != nil {
		return p.Container.Terminate(ctx)
	}
	return nil
}
