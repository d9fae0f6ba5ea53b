package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/apperr"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/aws"
)

// ErrDuplicateKey is returned by CreateOrder when the idempotency claim lost
// against an earlier commit of the same key.
var ErrDuplicateKey = errors.New("idempotency key already committed")

var errVersionConflict = apperr.Conflict("El pedido fue modificado por otra operación. Recarga e intenta de nuevo.")

// Tables names the tables the store writes to.
type Tables struct {
	Orders          string
	Products        string
	ManualDecisions string
}

// Store encapsulates operations on orders, product stock and manual decisions.
type Store struct {
	client  aws.DynamoDBAPI
	tables  Tables
	nowFunc func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tables Tables) *Store {
	return &Store{
		client:  client,
		tables:  tables,
		nowFunc: time.Now,
	}
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tables.Orders,
		Key:            stringKey("order_id", orderID),
		ConsistentRead: boolPtr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// stockLine is the aggregated decrement for one product.
type stockLine struct {
	productID string
	name      string
	units     int64
}

// aggregateStock collapses order lines into one decrement per product, each
// line consuming exactly one unit. First-seen order is preserved.
func aggregateStock(items []Item) []stockLine {
	idx := map[string]int{}
	var lines []stockLine
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			lines[i].units++
			continue
		}
		idx[it.ProductID] = len(lines)
		lines = append(lines, stockLine{productID: it.ProductID, name: it.Name, units: 1})
	}
	return lines
}

// CreateOrder commits, in one transaction: the optional idempotency claim,
// one conditional stock decrement per product, and the order itself. Any
// failed condition cancels every write.
func (s *Store) CreateOrder(ctx context.Context, order Order, claim *types.TransactWriteItem) error {
	now := s.nowFunc().UTC()
	order.Version = 1

	var items []types.TransactWriteItem
	claimIdx := -1
	if claim != nil {
		claimIdx = len(items)
		items = append(items, *claim)
	}

	lines := aggregateStock(order.Items)
	stockStart := len(items)
	for _, l := range lines {
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName:           &s.tables.Products,
				Key:                 stringKey("product_id", l.productID),
				UpdateExpression:    awsString("SET stock = stock - :qty, updated_at = :ua"),
				ConditionExpression: awsString("attribute_exists(product_id) AND stock >= :qty"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":qty": &types.AttributeValueMemberN{Value: strconv.FormatInt(l.units, 10)},
					":ua":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
				},
				ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
			},
		})
	}

	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tables.Orders,
			Item:                orderMap,
			ConditionExpression: awsString("attribute_not_exists(order_id)"),
		},
	})

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}

	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return fmt.Errorf("transact write order: %w", err)
	}
	reasons := tce.CancellationReasons
	if claimIdx >= 0 && failedAt(reasons, claimIdx) {
		return ErrDuplicateKey
	}
	for i, l := range lines {
		pos := stockStart + i
		if !failedAt(reasons, pos) {
			continue
		}
		if len(reasons[pos].Item) == 0 {
			return apperr.Validation(fmt.Sprintf("Producto %s no encontrado en inventario.", l.name))
		}
		return apperr.Validation(fmt.Sprintf("Lo siento, el %s se ha agotado mientras realizabas tu pedido.", l.name))
	}
	return fmt.Errorf("transaction canceled: %w", err)
}

func failedAt(reasons []types.CancellationReason, i int) bool {
	if i >= len(reasons) || reasons[i].Code == nil {
		return false
	}
	return *reasons[i].Code == "ConditionalCheckFailed"
}

// versionedPut writes order only if the stored version still equals expected.
func (s *Store) versionedPut(order Order, expected int64) (*types.Put, error) {
	order.Version = expected + 1
	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}
	cond := "#ver = :expected"
	if expected == 0 {
		// orders written before versioning carry no version attribute
		cond = "attribute_exists(order_id) AND (attribute_not_exists(#ver) OR #ver = :expected)"
	}
	return &types.Put{
		TableName:                &s.tables.Orders,
		Item:                     item,
		ConditionExpression:      awsString(cond),
		ExpressionAttributeNames: map[string]string{"#ver": "version"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
		},
	}, nil
}

// SavePendingAction stores order (carrying its new pending action) if nobody
// else changed it since it was read.
func (s *Store) SavePendingAction(ctx context.Context, order Order) error {
	put, err := s.versionedPut(order, order.Version)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                 put.TableName,
		Item:                      put.Item,
		ConditionExpression:       put.ConditionExpression,
		ExpressionAttributeNames:  put.ExpressionAttributeNames,
		ExpressionAttributeValues: put.ExpressionAttributeValues,
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException" {
			return errVersionConflict
		}
		return fmt.Errorf("put pending action: %w", err)
	}
	return nil
}

// ApplyUpdate writes the updated order and, when present, its manual decision
// record in one transaction. expected is the version the caller read.
func (s *Store) ApplyUpdate(ctx context.Context, order Order, expected int64, decision *ManualDecision) error {
	var items []types.TransactWriteItem
	if decision != nil {
		decMap, err := attributevalue.MarshalMap(decision)
		if err != nil {
			return fmt.Errorf("marshal manual decision: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           &s.tables.ManualDecisions,
				Item:                decMap,
				ConditionExpression: awsString("attribute_not_exists(decision_id)"),
			},
		})
	}
	put, err := s.versionedPut(order, expected)
	if err != nil {
		return err
	}
	orderIdx := len(items)
	items = append(items, types.TransactWriteItem{Put: put})

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && failedAt(tce.CancellationReasons, orderIdx) {
			return errVersionConflict
		}
		return fmt.Errorf("transact write order update: %w", err)
	}
	return nil
}

func stringKey(attr, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{attr: &types.AttributeValueMemberS{Value: value}}
}

func awsString(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
