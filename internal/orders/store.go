package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/virology-token-service/internal/aws"
	"github.com/imrishuroy/virology-token-service/internal/clock"
)

// Tables names the three DynamoDB tables backing a Store.
type Tables struct {
	Orders           string // PK ctaToken
	PollingTokens    string // PK testResultPollingToken
	SubmissionTokens string // PK diagnosisKeySubmissionToken
}

// Store encapsulates test order operations against DynamoDB.
type Store struct {
	client aws.DynamoDBAPI
	tables Tables
	clock  clock.Clock
}

// NewStore creates a new DynamoDB backed Store.
func NewStore(client aws.DynamoDBAPI, tables Tables, c clock.Clock) *Store {
	return &Store{
		client: client,
		tables: tables,
		clock:  c,
	}
}

// Create writes the order together with its polling and submission token guard items in
// one transaction. Every put is conditional on its key being absent, so a clash on any
// token writes nothing and returns ErrAlreadyExists.
func (s *Store) Create(ctx context.Context, order TestOrder) error {
	now := s.clock.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	pollingMap, err := attributevalue.MarshalMap(pollingTokenItem{
		TestResultPollingToken: order.TestResultPollingToken,
		CtaToken:               order.CtaToken,
		ExpireAt:               order.ExpireAt,
	})
	if err != nil {
		return fmt.Errorf("marshal polling token item: %w", err)
	}
	submissionMap, err := attributevalue.MarshalMap(submissionTokenItem{
		DiagnosisKeySubmissionToken: order.DiagnosisKeySubmissionToken,
		CtaToken:                    order.CtaToken,
		ExpireAt:                    order.ExpireAt,
	})
	if err != nil {
		return fmt.Errorf("marshal submission token item: %w", err)
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           sdkaws.String(s.tables.Orders),
					Item:                orderMap,
					ConditionExpression: sdkaws.String("attribute_not_exists(ctaToken)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           sdkaws.String(s.tables.PollingTokens),
					Item:                pollingMap,
					ConditionExpression: sdkaws.String("attribute_not_exists(testResultPollingToken)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           sdkaws.String(s.tables.SubmissionTokens),
					Item:                submissionMap,
					ConditionExpression: sdkaws.String("attribute_not_exists(diagnosisKeySubmissionToken)"),
				},
			},
		},
	}

	_, err = s.client.TransactWriteItems(ctx, input)
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && hasConditionalFailure(tce) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("transact write (%s): %w", errorCode(err), err)
	}
	return nil
}

func hasConditionalFailure(tce *types.TransactionCanceledException) bool {
	// a mock or older endpoint may omit reasons; treat that as a condition failure
	if len(tce.CancellationReasons) == 0 {
		return true
	}
	for _, r := range tce.CancellationReasons {
		if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}

// GetByCtaToken fetches an order. Returns (nil, nil) if absent or expired.
func (s *Store) GetByCtaToken(ctx context.Context, ctaToken string) (*TestOrder, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      sdkaws.String(s.tables.Orders),
		Key:            stringKey("ctaToken", ctaToken),
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get order (%s): %w", errorCode(err), err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o TestOrder
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	if o.Expired(s.clock.Now()) {
		return nil, nil
	}
	return &o, nil
}

// GetByPollingToken resolves the polling token guard item and fetches its order.
// Returns (nil, nil) if absent or expired.
func (s *Store) GetByPollingToken(ctx context.Context, pollingToken string) (*TestOrder, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      sdkaws.String(s.tables.PollingTokens),
		Key:            stringKey("testResultPollingToken", pollingToken),
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get polling token (%s): %w", errorCode(err), err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p pollingTokenItem
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal polling token: %w", err)
	}
	return s.GetByCtaToken(ctx, p.CtaToken)
}

// UpdateStatus conditionally moves an order from expected to newStatus, optionally
// writing the lab result, and returns the order as it was before the write.
//
// Returns ErrNotFound if no live order has the token. Returns ErrStatusMismatch together
// with the current order if the order is live but not in the expected status.
func (s *Store) UpdateStatus(ctx context.Context, ctaToken string, expected, newStatus Status, result *Result) (*TestOrder, error) {
	now := s.clock.Now()

	updateExpr := "SET #s = :new, updatedAt = :ua"
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: string(newStatus)},
		":expected": &types.AttributeValueMemberS{Value: string(expected)},
		":ua":       &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
		":now":      &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
	}
	if result != nil {
		endDate, err := attributevalue.Marshal(result.TestEndDate)
		if err != nil {
			return nil, fmt.Errorf("marshal test end date: %w", err)
		}
		updateExpr += ", testResult = :tr, testEndDate = :ted"
		values[":tr"] = &types.AttributeValueMemberS{Value: result.TestResult}
		values[":ted"] = endDate
	}

	input := &dyn.UpdateItemInput{
		TableName:                           sdkaws.String(s.tables.Orders),
		Key:                                 stringKey("ctaToken", ctaToken),
		UpdateExpression:                    sdkaws.String(updateExpr),
		ConditionExpression:                 sdkaws.String("attribute_exists(ctaToken) AND #s = :expected AND expireAt > :now"),
		ExpressionAttributeNames:            map[string]string{"#s": "status"},
		ExpressionAttributeValues:           values,
		ReturnValues:                        types.ReturnValueAllOld,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return s.classifyConditionFailure(ccf.Item, now)
		}
		return nil, fmt.Errorf("update item (%s): %w", errorCode(err), err)
	}

	var prior TestOrder
	if err := attributevalue.UnmarshalMap(out.Attributes, &prior); err != nil {
		return nil, fmt.Errorf("unmarshal prior order: %w", err)
	}
	return &prior, nil
}

func (s *Store) classifyConditionFailure(item map[string]types.AttributeValue, now time.Time) (*TestOrder, error) {
	if len(item) == 0 {
		return nil, ErrNotFound
	}
	var current TestOrder
	if err := attributevalue.UnmarshalMap(item, &current); err != nil {
		return nil, fmt.Errorf("unmarshal current order: %w", err)
	}
	if current.Expired(now) {
		return nil, ErrNotFound
	}
	return &current, ErrStatusMismatch
}

func stringKey(name, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		name: &types.AttributeValueMemberS{Value: value},
	}
}
