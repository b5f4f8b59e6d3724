package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// API is the subset of *dynamodb.Client the code store uses.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// codeItem is one live code. PK: code_key. expires_at doubles as the table's
// TTL attribute.
type codeItem struct {
	Key       string `dynamodbav:"code_key"`
	Code      string `dynamodbav:"code"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
}

// CodeStore keeps one-time codes in DynamoDB. DynamoDB reaps expired items
// lazily, so reads also compare expires_at with the clock.
type CodeStore struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewCodeStore(client API, tableName string) *CodeStore {
	return &CodeStore{client: client, tableName: tableName, now: time.Now}
}

func (s *CodeStore) Set(ctx context.Context, key, code string, ttl time.Duration) error {
	item, err := attributevalue.MarshalMap(codeItem{
		Key:       key,
		Code:      code,
		ExpiresAt: s.now().Add(ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal code: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("%w: put code: %w", domain.ErrUnavailable, err)
	}
	return nil
}

func (s *CodeStore) Get(ctx context.Context, key string) (string, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("%w: get code: %w", domain.ErrUnavailable, err)
	}
	if out.Item == nil {
		return "", domain.ErrCodeNotFound
	}

	var item codeItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return "", fmt.Errorf("unmarshal code: %w", err)
	}
	if s.now().Unix() >= item.ExpiresAt {
		return "", domain.ErrCodeNotFound
	}
	return item.Code, nil
}

// Delete is a conditional delete: it only succeeds while the item still holds
// code and has not expired. Of several concurrent redemptions of the same
// code exactly one sees success.
func (s *CodeStore) Delete(ctx context.Context, key, code string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tableName),
		Key:                 itemKey(key),
		ConditionExpression: aws.String("#code = :code AND #exp > :now"),
		ExpressionAttributeNames: map[string]string{
			"#code": "code",
			"#exp":  "expires_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":code": &types.AttributeValueMemberS{Value: code},
			":now":  &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.ErrCodeNotFound
		}
		return fmt.Errorf("%w: delete code: %w", domain.ErrUnavailable, err)
	}
	return nil
}

func (s *CodeStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	return err
}

func itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"code_key": &types.AttributeValueMemberS{Value: key},
	}
}
