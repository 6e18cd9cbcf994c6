package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/virology-token-service/internal/aws"
	"github.com/imrishuroy/virology-token-service/internal/clock"
	"github.com/imrishuroy/virology-token-service/internal/config"
	"github.com/imrishuroy/virology-token-service/internal/logger"
	"github.com/imrishuroy/virology-token-service/internal/metrics"
	"github.com/imrishuroy/virology-token-service/internal/orders"
	"github.com/imrishuroy/virology-token-service/internal/tokens"
	"github.com/imrishuroy/virology-token-service/internal/virology"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	sysClock := clock.System{}
	var (
		store    virology.Store
		recorder metrics.Recorder = metrics.Nop{}
	)
	if cfg.StoreBackend == config.BackendMemory {
		store = orders.NewMemoryStore(sysClock)
	} else {
		clients, err := aws.NewAWSClients(context.Background())
		if err != nil {
			zl.Fatal("failed to init aws clients", zap.Error(err))
		}
		store = orders.NewStore(clients.DynamoDB, orders.Tables{
			Orders:           cfg.TestOrdersTable,
			PollingTokens:    cfg.TestResultsTable,
			SubmissionTokens: cfg.SubmissionTokensTable,
		}, sysClock)
		if cfg.MetricsEnabled {
			recorder = metrics.NewCloudWatch(clients.CloudWatch, cfg.MetricsNamespace, sysClock, zl)
		}
	}

	svc := virology.NewService(store, tokens.NewGenerator(), sysClock, virology.Config{
		OrderTTL: cfg.TestOrderTTL,
	}, recorder, zl)
	p := NewProcessor(svc, zl)

	// RUN_LOCAL=true processes a single message taken from LOCAL_SQS_BODY.
	if cfg.RunLocal {
		event := events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local", Body: cfg.LocalSQSBody}},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			zl.Fatal("local handler error", zap.Error(err))
		}
		return
	}

	lambda.Start(p.Handle)
}
