package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/imrishuroy/virology-token-service/internal/aws"
	"github.com/imrishuroy/virology-token-service/internal/clock"
	"github.com/imrishuroy/virology-token-service/internal/config"
	"github.com/imrishuroy/virology-token-service/internal/handlers"
	"github.com/imrishuroy/virology-token-service/internal/logger"
	"github.com/imrishuroy/virology-token-service/internal/metrics"
	"github.com/imrishuroy/virology-token-service/internal/orders"
	"github.com/imrishuroy/virology-token-service/internal/tokens"
	"github.com/imrishuroy/virology-token-service/internal/virology"
)

func setupRouter(cfg *config.Config, hcfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(handlers.RequestLogger(hcfg.Logger))
	if cfg.RateLimitRPS > 0 {
		r.Use(handlers.RateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)))
	}

	handlers.RegisterRoutes(r, hcfg)

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateAPI(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	sysClock := clock.System{}
	var (
		store     virology.Store
		recorder  metrics.Recorder = metrics.Nop{}
		publisher handlers.ResultPublisher
	)

	switch cfg.StoreBackend {
	case config.BackendMemory:
		zl.Warn("using in-memory store; data is lost on restart")
		store = orders.NewMemoryStore(sysClock)
	default:
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
		if cfg.ResultsQueueURL != "" {
			publisher = aws.NewPublisher(clients.SQS, cfg.ResultsQueueURL)
		}
	}

	svc := virology.NewService(store, tokens.NewGenerator(), sysClock, virology.Config{
		Websites: virology.WebsiteConfig{
			OrderWebsite:    cfg.OrderWebsite,
			RegisterWebsite: cfg.RegisterWebsite,
		},
		MaxTokenAttempts: cfg.MaxTokenPersistenceRetryCount,
		OrderTTL:         cfg.TestOrderTTL,
	}, recorder, zl)

	hcfg := handlers.HandlerConfig{
		Orders:    svc,
		Exchanger: virology.NewThrottledExchanger(svc, sysClock, cfg.ThrottleDuration),
		Publisher: publisher,
		Logger:    zl,
	}

	r := setupRouter(cfg, hcfg)

	// RUN_LOCAL=true serves plain HTTP for development.
	if cfg.RunLocal {
		zl.Info("running local server", zap.String("addr", cfg.LocalAddr))
		if err := r.Run(cfg.LocalAddr); err != nil {
			zl.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
