package dynamo

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTable is an in-memory single-table DynamoDB keyed by code_key. It
// evaluates only the delete condition the code store issues.
type fakeTable struct {
	mu    sync.Mutex
	items map[string]codeItem
	err   error
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: make(map[string]codeItem)}
}

func keyOf(t map[string]types.AttributeValue) string {
	return t["code_key"].(*types.AttributeValueMemberS).Value
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	var item codeItem
	if err := attributevalue.UnmarshalMap(in.Item, &item); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.items[item.Key] = item
	f.mu.Unlock()
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	item, ok := f.items[keyOf(in.Key)]
	f.mu.Unlock()
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: av}, nil
}

func (f *fakeTable) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	key := keyOf(in.Key)
	item, ok := f.items[key]
	code := in.ExpressionAttributeValues[":code"].(*types.AttributeValueMemberS).Value
	now, _ := strconv.ParseInt(in.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN).Value, 10, 64)
	if !ok || item.Code != code || item.ExpiresAt <= now {
		return nil, &types.ConditionalCheckFailedException{}
	}
	delete(f.items, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeTable) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, f.err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore() (*CodeStore, *fakeTable, *clock) {
	table := newFakeTable()
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	s := NewCodeStore(table, "otp_codes")
	s.now = c.now
	return s, table, c
}

func TestCodeStore_SetGetDelete(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "email:a@x.com", "123456", 2*time.Minute))

	code, err := s.Get(ctx, "email:a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", code)

	require.NoError(t, s.Delete(ctx, "email:a@x.com", "123456"))

	_, err = s.Get(ctx, "email:a@x.com")
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestCodeStore_SetReplaces(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "email:a@x.com", "111111", 2*time.Minute))
	require.NoError(t, s.Set(ctx, "email:a@x.com", "222222", 2*time.Minute))

	code, err := s.Get(ctx, "email:a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "222222", code)

	// The replaced code can no longer be consumed.
	assert.ErrorIs(t, s.Delete(ctx, "email:a@x.com", "111111"), domain.ErrCodeNotFound)
}

func TestCodeStore_ExpiredIsAbsentBeforeReaping(t *testing.T) {
	s, table, c := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "email:a@x.com", "123456", 2*time.Minute))
	c.t = c.t.Add(2 * time.Minute)

	_, err := s.Get(ctx, "email:a@x.com")
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "email:a@x.com", "123456"), domain.ErrCodeNotFound)
	assert.Len(t, table.items, 1, "item should still be physically present")
}

func TestCodeStore_ConcurrentDeleteSingleWinner(t *testing.T) {
	s, _, _ := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "email:a@x.com", "123456", 2*time.Minute))

	const n = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Delete(ctx, "email:a@x.com", "123456"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestCodeStore_BackendErrorIsUnavailable(t *testing.T) {
	s, table, _ := newTestStore()
	table.err = errors.New("connection reset")
	ctx := context.Background()

	assert.ErrorIs(t, s.Set(ctx, "k", "123456", time.Minute), domain.ErrUnavailable)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.ErrorIs(t, s.Delete(ctx, "k", "123456"), domain.ErrUnavailable)
	assert.Error(t, s.Ping(ctx))
}
