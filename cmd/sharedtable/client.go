package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"

	"github.com/acksell/sharedtable/backend"
	"github.com/acksell/sharedtable/indexmap"
	"github.com/acksell/sharedtable/metadata"
	"github.com/acksell/sharedtable/router"
)

func awsConfig(ctx context.Context) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx)
}

// newBackendClient resolves ambient AWS credentials and wires a
// backend.DynamoClient around the resulting dynamodb/dynamodbstreams
// clients.
func newBackendClient(ctx context.Context) (backend.Client, error) {
	cfg, err := awsConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	ddb := dynamodb.NewFromConfig(cfg)
	streams := dynamodbstreams.NewFromConfig(cfg)
	return backend.NewDynamoClient(ddb, streams), nil
}

// newRouter wires the standard router stack (file-backed physical-table
// pool, DynamoDB-backed metadata repo, by-type index mapper) for the
// describe/inspect-mapping commands, so what they print reflects durable
// state rather than a throwaway in-memory repo.
func newRouter(ctx context.Context, configPath string) (*router.Router, error) {
	factory, err := metadata.LoadFileCreateTableRequestFactory(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	client, err := newBackendClient(ctx)
	if err != nil {
		return nil, err
	}
	metadataTable := envOrDefault("SHAREDTABLE_METADATA_TABLE", "sharedtable-metadata")
	repo := metadata.NewDynamoRepo(client, metadataTable)
	return router.New(repo, client, factory, indexmap.ByType{}), nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
