package main

import (
	"context"
	"log"
	"os"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-meatshop-orderflow/internal/aws"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/config"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/logger"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/metrics"
	"github.com/imrishuroy/go-meatshop-orderflow/internal/orders"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zl, err := logger.New(cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	clients, err := aws.NewAWSClients(context.Background(), cfg.AWS.Region, cfg.AWS.EndpointOverride)
	if err != nil {
		zl.Fatal("failed to init aws clients", zap.Error(err))
	}

	var rec metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.Enabled {
		rec = metrics.NewCloudWatch(clients.CloudWatch, cfg.Metrics.Namespace, zl)
	}
	store := orders.NewStore(clients.DynamoDB, orders.Tables{
		Orders:          cfg.Tables.Orders,
		Products:        cfg.Tables.Products,
		ManualDecisions: cfg.Tables.ManualDecisions,
	})
	p := NewProcessor(store, rec, zl)

	// RUN_LOCAL=true processes a single message from LOCAL_SQS_BODY.
	if cfg.Server.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			body = `{"type":"ORDER_CREATED","order_id":"local-order-1"}`
		}
		ev := lambdaevents.SQSEvent{Records: []lambdaevents.SQSMessage{{MessageId: "local", Body: body}}}
		if err := p.Handle(context.Background(), ev); err != nil {
			zl.Fatal("local handler error", zap.Error(err))
		}
		return
	}

	lambda.Start(p.Handle)
}
