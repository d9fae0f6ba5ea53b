package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/aws"
)

// GlobalSettingID is the key of the singleton settings document.
const GlobalSettingID = "global"

// Settings is the singleton system settings document.
type Settings struct {
	SettingID        string    `json:"-" dynamodbav:"setting_id"`
	Mode             Mode      `json:"mode" dynamodbav:"mode"`
	UpdatedAt        time.Time `json:"updatedAt" dynamodbav:"updated_at"`
	UpdatedBy        string    `json:"updatedBy" dynamodbav:"updated_by"`
	EmergencyMessage string    `json:"emergencyMessage,omitempty" dynamodbav:"emergency_message,omitempty"`
}

// Store reads and writes the settings document.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Get returns the settings document, or (nil, nil) if it was never written.
func (s *Store) Get(ctx context.Context) (*Settings, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"setting_id": &types.AttributeValueMemberS{Value: GlobalSettingID},
		},
		ConsistentRead: boolPtr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var st Settings
	if err := attributevalue.UnmarshalMap(out.Item, &st); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	if st.Mode == "" {
		st.Mode = ModeNormal
	}
	return &st, nil
}

// Put replaces the settings document.
func (s *Store) Put(ctx context.Context, st Settings) error {
	st.SettingID = GlobalSettingID
	item, err := attributevalue.MarshalMap(st)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.tableName, Item: item}); err != nil {
		return fmt.Errorf("put settings: %w", err)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }
