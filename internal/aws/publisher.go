package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Attribute names with a routing meaning on FIFO queues.
const (
	AttrOrderID   = "order_id"
	AttrEventType = "event_type"
)

var errNoQueue = errors.New("queue url not configured")

// Publisher sends order events to one SQS queue. On FIFO queues (URL ending
// in .fifo) messages are grouped per order and deduplicated per order and
// event type.
type Publisher struct {
	sqs      SQSAPI
	queueURL string
	fifo     bool
}

// NewPublisher returns a Publisher bound to queueURL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		sqs:      sqsClient,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// Publish sends body with attributes as String message attributes. Empty
// values are skipped since SQS rejects them.
func (p *Publisher) Publish(ctx context.Context, body string, attributes map[string]string) error {
	if p.queueURL == "" {
		return fmt.Errorf("send message: %w", errNoQueue)
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.queueURL,
		MessageBody: &body,
	}

	msgAttrs := map[string]sqstypes.MessageAttributeValue{}
	for k, v := range attributes {
		if v == "" {
			continue
		}
		msgAttrs[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: awsString(v),
		}
	}
	if len(msgAttrs) > 0 {
		input.MessageAttributes = msgAttrs
	}

	if p.fifo {
		group := attributes[AttrOrderID]
		if group == "" {
			group = "orders"
		}
		input.MessageGroupId = awsString(group)
		if id := attributes[AttrOrderID]; id != "" {
			input.MessageDeduplicationId = awsString(id + ":" + attributes[AttrEventType])
		}
	}

	if _, err := p.sqs.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
