// Package dynamostore keeps the last record of each key in a DynamoDB table
// whose partition key is the string attribute "path".
package dynamostore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"nuha.dev/bustracker/internal/sink"
)

const DefaultTable = "bustracker-location"

// API is the subset of the DynamoDB client used by Store.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

type item struct {
	Path string `dynamodbav:"path"`
	sink.Record
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

type Store struct {
	client API
	table  string
}

func New(client API, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{client: client, table: table}
}

// Connect builds a client from the default AWS credential chain. A non-empty
// endpoint points the client at a local DynamoDB.
func Connect(ctx context.Context, region, endpoint, table string) (*Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return New(client, table), nil
}

func (st *Store) Put(ctx context.Context, key string, r sink.Record) error {
	av, err := attributevalue.MarshalMap(item{Path: key, Record: r, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	_, err = st.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(st.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (st *Store) Get(ctx context.Context, key string) (sink.Record, error) {
	out, err := st.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(st.table),
		Key: map[string]dynamodbtypes.AttributeValue{
			"path": &dynamodbtypes.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return sink.Record{}, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if out.Item == nil {
		return sink.Record{}, sink.ErrNotFound
	}
	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return sink.Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return it.Record, nil
}

func (st *Store) Close() error {
	return nil
}
