// Package blacklist permanently blocks client IPs caught by the honeypot. The
// durable record lives in DynamoDB; a Redis key mirrors it for the edge check.
package blacklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/smithy-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/aws"
)

// CacheTTL is how long the look-aside key blocks an IP at the edge.
const CacheTTL = 30 * 24 * time.Hour

// TypeBotAutomation classifies honeypot blocks.
const TypeBotAutomation = "BOT_AUTOMATION"

// Entry is one blocked address.
type Entry struct {
	IP        string    `dynamodbav:"ip"` // PK
	Reason    string    `dynamodbav:"reason"`
	BlockedAt time.Time `dynamodbav:"blocked_at"`
	UserAgent string    `dynamodbav:"user_agent"`
	Type      string    `dynamodbav:"type"`
}

// CacheKey is the Redis key consulted by the edge middleware.
func CacheKey(ip string) string {
	return "blacklist_" + ip
}

// Blocker writes and checks blocks. rdb may be nil, in which case only the
// durable record is written and IsBlocked always reports false.
type Blocker struct {
	client    aws.DynamoDBAPI
	tableName string
	rdb       redis.Cmdable
	log       *zap.Logger
	nowFunc   func() time.Time
}

func NewBlocker(client aws.DynamoDBAPI, tableName string, rdb redis.Cmdable, log *zap.Logger) *Blocker {
	return &Blocker{
		client:    client,
		tableName: tableName,
		rdb:       rdb,
		log:       log,
		nowFunc:   time.Now,
	}
}

// Block records ip as blocked. A second block of the same ip keeps the first
// record. Only the durable write can fail the call.
func (b *Blocker) Block(ctx context.Context, ip, userAgent, reason string) error {
	if userAgent == "" {
		userAgent = "unknown"
	}
	entry := Entry{
		IP:        ip,
		Reason:    reason,
		BlockedAt: b.nowFunc().UTC(),
		UserAgent: userAgent,
		Type:      TypeBotAutomation,
	}
	item, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("marshal blacklist entry: %w", err)
	}
	_, err = b.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &b.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(ip)"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "ConditionalCheckFailedException" {
			return fmt.Errorf("put blacklist entry: %w", err)
		}
	}

	if b.rdb != nil {
		if err := b.rdb.Set(ctx, CacheKey(ip), "true", CacheTTL).Err(); err != nil {
			b.log.Warn("failed to mirror block into redis", zap.String("ip", ip), zap.Error(err))
		}
	}
	return nil
}

// IsBlocked consults the look-aside cache.
func (b *Blocker) IsBlocked(ctx context.Context, ip string) (bool, error) {
	if b.rdb == nil {
		return false, nil
	}
	n, err := b.rdb.Exists(ctx, CacheKey(ip)).Result()
	if err != nil {
		return false, fmt.Errorf("check blacklist cache: %w", err)
	}
	return n > 0, nil
}

func awsString(s string) *string { return &s }
