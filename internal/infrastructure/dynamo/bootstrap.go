package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const defaultTableWait = 30 * time.Second

// EnsureCodesTable creates the code table and enables TTL reaping on
// expires_at. Safe to call on every startup.
func EnsureCodesTable(ctx context.Context, client *dynamodb.Client, tableName string, logger *slog.Logger) error {
	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(tableName),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("code_key"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("code_key"), KeyType: types.KeyTypeHash},
		},
	})
	if err != nil {
		var riue *types.ResourceInUseException
		if !errors.As(err, &riue) {
			return fmt.Errorf("create table %s: %w", tableName, err)
		}
	} else {
		logger.Info("created table", "table", tableName)
		waiter := dynamodb.NewTableExistsWaiter(client)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, defaultTableWait); err != nil {
			return fmt.Errorf("wait for table %s: %w", tableName, err)
		}
	}

	_, err = client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String("expires_at"),
		},
	})
	if err != nil {
		// Already-enabled TTL is reported as a ValidationException.
		logger.Warn("could not enable TTL", "table", tableName, "error", err)
	}
	return nil
}
