package orders

import (
	"context"
	"errors"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a small in-memory DynamoDB that understands exactly the expressions the
// Store issues. Items are stored per table: table -> pk value -> item.
type mockDynamo struct {
	mu       sync.Mutex
	pkNames  map[string]string
	tables   map[string]map[string]map[string]types.AttributeValue
	failWith error

	transactCalls int
	updateCalls   int
}

func newMockDynamo(tables Tables) *mockDynamo {
	return &mockDynamo{
		pkNames: map[string]string{
			tables.Orders:           "ctaToken",
			tables.PollingTokens:    "testResultPollingToken",
			tables.SubmissionTokens: "diagnosisKeySubmissionToken",
		},
		tables: map[string]map[string]map[string]types.AttributeValue{
			tables.Orders:           {},
			tables.PollingTokens:    {},
			tables.SubmissionTokens: {},
		},
	}
}

func (m *mockDynamo) pk(table string, item map[string]types.AttributeValue) (string, error) {
	name, ok := m.pkNames[table]
	if !ok {
		return "", errors.New("unknown table " + table)
	}
	v, ok := item[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing key attribute " + name)
	}
	return v.Value, nil
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := m.pk(*params.TableName, params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil {
		if _, exists := m.tables[*params.TableName][pk]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.tables[*params.TableName][pk] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	pk, err := m.pk(*params.TableName, params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.tables[*params.TableName][pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

// UpdateItem evaluates "attribute_exists(ctaToken) AND #s = :expected AND expireAt > :now".
func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	table := *params.TableName
	pk, err := m.pk(table, params.Key)
	if err != nil {
		return nil, err
	}
	vals := params.ExpressionAttributeValues

	item, exists := m.tables[table][pk]
	ok := exists &&
		attrS(item["status"]) == attrS(vals[":expected"]) &&
		attrN(item["expireAt"]) > attrN(vals[":now"])
	if !ok {
		ccf := &types.ConditionalCheckFailedException{}
		if exists && params.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld {
			ccf.Item = copyItem(item)
		}
		return nil, ccf
	}

	old := copyItem(item)
	item["status"] = vals[":new"]
	item["updatedAt"] = vals[":ua"]
	if v, ok := vals[":tr"]; ok {
		item["testResult"] = v
	}
	if v, ok := vals[":ted"]; ok {
		item["testEndDate"] = v
	}
	return &dyn.UpdateItemOutput{Attributes: old}, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	// first pass: verify every attribute_not_exists condition
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, it := range params.TransactItems {
		code := "None"
		if p := it.Put; p != nil && p.ConditionExpression != nil {
			pk, err := m.pk(*p.TableName, p.Item)
			if err != nil {
				return nil, err
			}
			if _, exists := m.tables[*p.TableName][pk]; exists {
				code = "ConditionalCheckFailed"
				failed = true
			}
		}
		reasons[i] = types.CancellationReason{Code: &code}
	}
	if failed {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}
	// second pass: apply all puts
	for _, it := range params.TransactItems {
		if p := it.Put; p != nil {
			pk, _ := m.pk(*p.TableName, p.Item)
			m.tables[*p.TableName][pk] = copyItem(p.Item)
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func copyItem(src map[string]types.AttributeValue) map[string]types.AttributeValue {
	dst := make(map[string]types.AttributeValue, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func attrS(v types.AttributeValue) string {
	if s, ok := v.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func attrN(v types.AttributeValue) int64 {
	if n, ok := v.(*types.AttributeValueMemberN); ok {
		i, _ := strconv.ParseInt(n.Value, 10, 64)
		return i
	}
	return 0
}
