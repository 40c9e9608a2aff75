package state

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/adserving/internal/domain"
)

const dynamoPK = "SERVING_STATE"

// DynamoAPI is the subset of *dynamodb.Client the store needs.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// dynamoItem is the single-table layout shared with other entities: the
// state is stored as a JSON blob under PK=SERVING_STATE, SK=<profile>.
type dynamoItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	Data      string `dynamodbav:"Data"`
	Timestamp string `dynamodbav:"Timestamp"`
}

// DynamoStore keeps the state in a DynamoDB table.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	profileID string
	now       func() time.Time
}

// NewDynamoStore creates a store from an AWS config.
func NewDynamoStore(cfg aws.Config, tableName, profileID string) *DynamoStore {
	return NewDynamoStoreWithClient(dynamodb.NewFromConfig(cfg), tableName, profileID)
}

// NewDynamoStoreWithClient creates a store around an existing client.
func NewDynamoStoreWithClient(client DynamoAPI, tableName, profileID string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, profileID: profileID, now: time.Now}
}

// Load implements Store.
func (d *DynamoStore) Load(ctx context.Context) (domain.ServingState, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: dynamoPK},
			"SK": &types.AttributeValueMemberS{Value: d.profileID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.ServingState{}, fmt.Errorf("getting serving state from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return domain.ServingState{}, nil
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return domain.ServingState{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return decode([]byte(item.Data))
}

// Save implements Store.
func (d *DynamoStore) Save(ctx context.Context, s domain.ServingState) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(dynamoItem{
		PK:        dynamoPK,
		SK:        d.profileID,
		Data:      string(data),
		Timestamp: d.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshaling serving state item: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting serving state to DynamoDB: %w", err)
	}
	return nil
}
