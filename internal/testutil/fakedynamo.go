// Package testutil holds in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// FakeDynamo is an in-memory DynamoDB covering GetItem, PutItem and
// TransactWriteItems. It understands the small condition/update grammar used
// by the stores:
//
//	attribute_exists(a) | attribute_not_exists(a) | a = :v | a >= :v   (joined by AND,
//	optionally grouped as (x OR y))
//	SET a = :v, b = b - :v, c = c + :v
//
// Transactions hold the table lock for their whole duration, so they are
// serializable and all-or-nothing.
type FakeDynamo struct {
	mu     sync.Mutex
	keys   map[string]string // table -> partition key attribute
	tables map[string]map[string]map[string]types.AttributeValue

	// FailGet, when set, is returned by every GetItem call.
	FailGet error
	// FailWrite, when set, is returned by every PutItem/TransactWriteItems call.
	FailWrite error

	GetCalls      int
	PutCalls      int
	TransactCalls int
}

// NewFakeDynamo creates a fake; keys maps each table name to its partition key.
func NewFakeDynamo(keys map[string]string) *FakeDynamo {
	f := &FakeDynamo{
		keys:   keys,
		tables: map[string]map[string]map[string]types.AttributeValue{},
	}
	for tbl := range keys {
		f.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
	return f
}

// Seed stores item directly, bypassing conditions.
func (f *FakeDynamo) Seed(table string, item map[string]types.AttributeValue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pk, err := f.pkOf(table, item)
	if err != nil {
		panic(err)
	}
	f.tables[table][pk] = copyItem(item)
}

// Item returns a copy of the stored item, or nil.
func (f *FakeDynamo) Item(table, key string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.tables[table][key]
	if !ok {
		return nil
	}
	return copyItem(item)
}

// Items returns copies of every item in table.
func (f *FakeDynamo) Items(table string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]types.AttributeValue, 0, len(f.tables[table]))
	for _, item := range f.tables[table] {
		out = append(out, copyItem(item))
	}
	return out
}

// Count returns the number of items in table.
func (f *FakeDynamo) Count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tables[table])
}

func (f *FakeDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls++
	if f.FailGet != nil {
		return nil, f.FailGet
	}
	key, err := keyValue(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := f.table(*params.TableName)[key]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *FakeDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PutCalls++
	if f.FailWrite != nil {
		return nil, f.FailWrite
	}
	table := *params.TableName
	pk, err := f.pkOf(table, params.Item)
	if err != nil {
		return nil, err
	}
	existing := f.table(table)[pk]
	ok, err := evalCondition(params.ConditionExpression, existing, params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
	}
	f.table(table)[pk] = copyItem(params.Item)
	return &dyn.PutItemOutput{}, nil
}

type pendingWrite struct {
	table string
	key   string
	item  map[string]types.AttributeValue
}

func (f *FakeDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TransactCalls++
	if f.FailWrite != nil {
		return nil, f.FailWrite
	}

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	writes := make([]pendingWrite, 0, len(params.TransactItems))
	failed := false

	for i, it := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: strPtr("None")}
		switch {
		case it.Put != nil:
			p := it.Put
			pk, err := f.pkOf(*p.TableName, p.Item)
			if err != nil {
				return nil, err
			}
			existing := f.table(*p.TableName)[pk]
			ok, err := evalCondition(p.ConditionExpression, existing, p.ExpressionAttributeNames, p.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			if !ok {
				failed = true
				reasons[i] = conditionFailed(existing, p.ReturnValuesOnConditionCheckFailure)
				continue
			}
			writes = append(writes, pendingWrite{table: *p.TableName, key: pk, item: copyItem(p.Item)})
		case it.Update != nil:
			u := it.Update
			pk, err := keyValue(u.Key)
			if err != nil {
				return nil, err
			}
			existing := f.table(*u.TableName)[pk]
			ok, err := evalCondition(u.ConditionExpression, existing, u.ExpressionAttributeNames, u.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			if !ok {
				failed = true
				reasons[i] = conditionFailed(existing, u.ReturnValuesOnConditionCheckFailure)
				continue
			}
			updated, err := applyUpdate(existing, u.Key, *u.UpdateExpression, u.ExpressionAttributeNames, u.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			writes = append(writes, pendingWrite{table: *u.TableName, key: pk, item: updated})
		case it.ConditionCheck != nil:
			c := it.ConditionCheck
			pk, err := keyValue(c.Key)
			if err != nil {
				return nil, err
			}
			existing := f.table(*c.TableName)[pk]
			ok, err := evalCondition(c.ConditionExpression, existing, c.ExpressionAttributeNames, c.ExpressionAttributeValues)
			if err != nil {
				return nil, err
			}
			if !ok {
				failed = true
				reasons[i] = conditionFailed(existing, c.ReturnValuesOnConditionCheckFailure)
			}
		default:
			return nil, errors.New("fake: unsupported transact item")
		}
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}
	for _, w := range writes {
		f.table(w.table)[w.key] = w.item
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}

func (f *FakeDynamo) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := f.tables[name]
	if !ok {
		t = map[string]map[string]types.AttributeValue{}
		f.tables[name] = t
	}
	return t
}

func (f *FakeDynamo) pkOf(table string, item map[string]types.AttributeValue) (string, error) {
	attr, ok := f.keys[table]
	if !ok {
		return "", fmt.Errorf("fake: no key registered for table %q", table)
	}
	v, ok := item[attr].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("fake: item in %q missing key %q", table, attr)
	}
	return v.Value, nil
}

func keyValue(key map[string]types.AttributeValue) (string, error) {
	if len(key) != 1 {
		return "", errors.New("fake: expected single-attribute key")
	}
	for _, v := range key {
		s, ok := v.(*types.AttributeValueMemberS)
		if !ok {
			return "", errors.New("fake: key must be a string")
		}
		return s.Value, nil
	}
	return "", nil
}

func conditionFailed(existing map[string]types.AttributeValue, rv types.ReturnValuesOnConditionCheckFailure) types.CancellationReason {
	r := types.CancellationReason{Code: strPtr("ConditionalCheckFailed"), Message: strPtr("The conditional request failed")}
	if rv == types.ReturnValuesOnConditionCheckFailureAllOld && existing != nil {
		r.Item = copyItem(existing)
	}
	return r
}

var (
	existsRe  = regexp.MustCompile(`^(attribute_exists|attribute_not_exists)\(([#\w]+)\)$`)
	compareRe = regexp.MustCompile(`^([#\w]+)\s*(=|>=|<=|<>)\s*(:\w+)$`)
)

func resolveName(n string, names map[string]string) string {
	if strings.HasPrefix(n, "#") {
		if real, ok := names[n]; ok {
			return real
		}
	}
	return n
}

func evalCondition(expr *string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if expr == nil || strings.TrimSpace(*expr) == "" {
		return true, nil
	}
	for _, clause := range strings.Split(*expr, " AND ") {
		clause = strings.TrimSpace(clause)
		if strings.HasPrefix(clause, "(") && strings.HasSuffix(clause, ")") {
			clause = clause[1 : len(clause)-1]
		}
		matched := false
		for _, term := range strings.Split(clause, " OR ") {
			ok, err := evalTerm(strings.TrimSpace(term), item, names, values)
			if err != nil {
				return false, err
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

func evalTerm(term string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	if m := existsRe.FindStringSubmatch(term); m != nil {
		_, present := item[resolveName(m[2], names)]
		return (m[1] == "attribute_exists") == present, nil
	}
	if m := compareRe.FindStringSubmatch(term); m != nil {
		want, ok := values[m[3]]
		if !ok {
			return false, fmt.Errorf("fake: missing value %s", m[3])
		}
		return compare(item[resolveName(m[1], names)], m[2], want)
	}
	return false, fmt.Errorf("fake: unsupported condition clause %q", term)
}

func compare(have types.AttributeValue, op string, want types.AttributeValue) (bool, error) {
	if have == nil {
		return false, nil
	}
	switch w := want.(type) {
	case *types.AttributeValueMemberN:
		h, ok := have.(*types.AttributeValueMemberN)
		if !ok {
			return false, nil
		}
		hv, err := strconv.ParseFloat(h.Value, 64)
		if err != nil {
			return false, err
		}
		wv, err := strconv.ParseFloat(w.Value, 64)
		if err != nil {
			return false, err
		}
		switch op {
		case "=":
			return hv == wv, nil
		case ">=":
			return hv >= wv, nil
		case "<=":
			return hv <= wv, nil
		case "<>":
			return hv != wv, nil
		}
	case *types.AttributeValueMemberS:
		h, ok := have.(*types.AttributeValueMemberS)
		if !ok {
			return false, nil
		}
		switch op {
		case "=":
			return h.Value == w.Value, nil
		case "<>":
			return h.Value != w.Value, nil
		}
	}
	return false, fmt.Errorf("fake: unsupported comparison %s", op)
}

var arithRe = regexp.MustCompile(`^([#\w]+)\s*([+-])\s*(:\w+)$`)

func applyUpdate(existing, key map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	out := copyItem(existing)
	if out == nil {
		out = copyItem(key)
	}
	if !strings.HasPrefix(expr, "SET ") {
		return nil, fmt.Errorf("fake: unsupported update %q", expr)
	}
	for _, assign := range strings.Split(strings.TrimPrefix(expr, "SET "), ",") {
		parts := strings.SplitN(assign, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("fake: bad assignment %q", assign)
		}
		lhs := resolveName(strings.TrimSpace(parts[0]), names)
		rhs := strings.TrimSpace(parts[1])
		if m := arithRe.FindStringSubmatch(rhs); m != nil {
			cur, ok := out[resolveName(m[1], names)].(*types.AttributeValueMemberN)
			if !ok {
				return nil, fmt.Errorf("fake: %s is not numeric", m[1])
			}
			delta, ok := values[m[3]].(*types.AttributeValueMemberN)
			if !ok {
				return nil, fmt.Errorf("fake: %s is not numeric", m[3])
			}
			a, _ := strconv.ParseInt(cur.Value, 10, 64)
			b, _ := strconv.ParseInt(delta.Value, 10, 64)
			if m[2] == "-" {
				a -= b
			} else {
				a += b
			}
			out[lhs] = &types.AttributeValueMemberN{Value: strconv.FormatInt(a, 10)}
			continue
		}
		v, ok := values[rhs]
		if !ok {
			return nil, fmt.Errorf("fake: missing value %s", rhs)
		}
		out[lhs] = v
	}
	return out, nil
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string { return &s }
