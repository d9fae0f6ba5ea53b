// Package audit appends immutable before/after records of administrative
// actions. Records are correlated with the state change they describe through
// a correlation ID.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/aws"
)

// Action kinds recorded by the service.
const (
	ActionOrderStatusChange = "ORDER_STATUS_CHANGE"
	ActionConfigChange      = "CONFIG_CHANGE"
)

// Requester identifies where an administrative request came from.
type Requester struct {
	IP        string
	UserAgent string
}

// Entry is one audit record.
type Entry struct {
	AuditID       string                 `dynamodbav:"audit_id"`
	ActorID       string                 `dynamodbav:"actor_id"`
	Action        string                 `dynamodbav:"action"`
	TargetID      string                 `dynamodbav:"target_id"`
	Before        map[string]interface{} `dynamodbav:"before,omitempty"`
	After         map[string]interface{} `dynamodbav:"after,omitempty"`
	Reason        string                 `dynamodbav:"reason,omitempty"`
	CorrelationID string                 `dynamodbav:"correlation_id"`
	IP            string                 `dynamodbav:"ip"`
	UserAgent     string                 `dynamodbav:"user_agent"`
	CreatedAt     time.Time              `dynamodbav:"created_at"`
	Metadata      map[string]interface{} `dynamodbav:"metadata,omitempty"`
}

// Logger appends audit entries.
type Logger interface {
	Record(ctx context.Context, e Entry) error
}

// Store writes audit entries to a DynamoDB table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Record assigns an ID and timestamp when absent and writes the entry.
// Existing records are never overwritten.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.AuditID == "" {
		e.AuditID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.nowFunc().UTC()
	}
	if e.IP == "" {
		e.IP = "unknown"
	}
	if e.UserAgent == "" {
		e.UserAgent = "unknown"
	}

	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(audit_id)"),
	})
	if err != nil {
		return fmt.Errorf("put audit entry: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
