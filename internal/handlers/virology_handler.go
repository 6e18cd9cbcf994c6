package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/virology-token-service/internal/logger"
	"github.com/imrishuroy/virology-token-service/internal/orders"
	"github.com/imrishuroy/virology-token-service/internal/validation"
	"github.com/imrishuroy/virology-token-service/internal/virology"
)

// TestOrders creates test orders and answers result polls.
type TestOrders interface {
	CreateOrder(ctx context.Context, kind orders.Kind) (virology.TestOrderTokens, error)
	Lookup(ctx context.Context, pollingToken string) (virology.LookupOutcome, error)
}

// ResultPublisher queues uploaded lab results for the worker.
type ResultPublisher interface {
	Publish(ctx context.Context, body any, attributes map[string]string) error
}

// HandlerConfig groups dependencies for the virology handlers.
type HandlerConfig struct {
	Orders TestOrders
	// Exchanger must enforce the minimum response time; cmd/api passes a
	// virology.ThrottledExchanger.
	Exchanger virology.Exchanger
	// Publisher is optional. Without it the result upload route is not registered.
	Publisher ResultPublisher
	Logger    *zap.Logger
}

type orderResponse struct {
	CtaToken               string `json:"ctaToken"`
	TestResultPollingToken string `json:"testResultPollingToken"`
	OrderWebsiteURL        string `json:"orderWebsiteUrl,omitempty"`
	RegisterWebsiteURL     string `json:"registerWebsiteUrl,omitempty"`
}

type resultResponse struct {
	TestEndDate string `json:"testEndDate"`
	TestResult  string `json:"testResult"`
}

type exchangeResponse struct {
	TestEndDate                 string `json:"testEndDate"`
	TestResult                  string `json:"testResult"`
	DiagnosisKeySubmissionToken string `json:"diagnosisKeySubmissionToken"`
}

// RegisterRoutes registers the virology test routes.
func RegisterRoutes(r gin.IRouter, cfg HandlerConfig) {
	v := validation.New()
	baseLog := cfg.Logger
	if baseLog == nil {
		baseLog = zap.NewNop()
	}

	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	r.GET("/virology-test/health", health)
	r.POST("/virology-test/health", health)

	createOrder := func(kind orders.Kind) gin.HandlerFunc {
		return func(c *gin.Context) {
			ctx := c.Request.Context()
			tokens, err := cfg.Orders.CreateOrder(ctx, kind)
			if err != nil {
				code := "order_failed"
				if errors.Is(err, virology.ErrTokenSpaceExhausted) {
					code = "token_space_exhausted"
				}
				logger.FromContext(ctx, baseLog).Error("create test order failed",
					zap.String("kind", string(kind)), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": code})
				return
			}

			resp := orderResponse{
				CtaToken:               tokens.CtaToken,
				TestResultPollingToken: tokens.TestResultPollingToken,
			}
			if kind == orders.KindRegister {
				resp.RegisterWebsiteURL = tokens.WebsiteURL
			} else {
				resp.OrderWebsiteURL = tokens.WebsiteURL
			}
			c.JSON(http.StatusOK, resp)
		}
	}
	r.POST("/virology-test/home-kit/order", createOrder(orders.KindOrder))
	r.POST("/virology-test/home-kit/register", createOrder(orders.KindRegister))

	r.POST("/virology-test/results", func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.FromContext(ctx, baseLog)

		var req validation.LookupRequest
		if err := validation.Bind(c, &req, v); err != nil {
			log.Info("invalid result lookup request", zap.String("reason", reason(err)))
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": reason(err)})
			return
		}

		out, err := cfg.Orders.Lookup(ctx, req.TestResultPollingToken)
		if err != nil {
			log.Error("result lookup failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
			return
		}

		switch out.Status {
		case virology.LookupAvailable:
			c.JSON(http.StatusOK, resultResponse{
				TestEndDate: formatDate(out.TestEndDate),
				TestResult:  out.TestResult,
			})
		case virology.LookupPending:
			c.Status(http.StatusNoContent)
		default:
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		}
	})

	r.POST("/virology-test/cta-exchange", func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.FromContext(ctx, baseLog)

		var req validation.CtaExchangeRequest
		if err := validation.Bind(c, &req, v); err != nil {
			// an unreadable body goes through the exchanger as an empty token so it
			// takes as long as every other answer
			log.Info("invalid cta exchange request", zap.String("reason", reason(err)))
			req.CtaToken = ""
		}

		out, err := cfg.Exchanger.Exchange(ctx, req.CtaToken)
		if err != nil {
			log.Error("cta exchange failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "exchange_failed"})
			return
		}

		switch out.Status {
		case virology.ExchangeConsumed:
			c.JSON(http.StatusOK, exchangeResponse{
				TestEndDate:                 formatDate(out.TestEndDate),
				TestResult:                  out.TestResult,
				DiagnosisKeySubmissionToken: out.DiagnosisKeySubmissionToken,
			})
		case virology.ExchangePending:
			c.Status(http.StatusNoContent)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cta_token"})
		}
	})

	if cfg.Publisher == nil {
		return
	}

	r.POST("/upload/virology-test/result", func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logger.FromContext(ctx, baseLog)

		var req validation.TestResultUploadRequest
		if err := validation.Bind(c, &req, v); err != nil {
			body := gin.H{"error": reason(err)}
			var verr *validation.Error
			if errors.As(err, &verr) && len(verr.Fields) > 0 {
				body["fields"] = verr.Fields
			}
			c.JSON(http.StatusBadRequest, body)
			return
		}

		// already checked by the datetime tag
		endDate, _ := time.Parse(time.RFC3339, req.TestEndDate)

		correlationID := c.GetString(requestIDKey)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}
		msg := virology.ResultMessage{
			CtaToken:      req.CtaToken,
			TestEndDate:   endDate.UTC(),
			TestResult:    req.TestResult,
			CorrelationID: correlationID,
		}
		if err := cfg.Publisher.Publish(ctx, msg, map[string]string{"correlation_id": correlationID}); err != nil {
			log.Error("enqueue test result failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
			return
		}

		log.Info("test result queued", zap.String("ctaToken", logger.Redact(req.CtaToken)))
		c.JSON(http.StatusAccepted, gin.H{"correlationId": correlationID})
	})
}

func reason(err error) string {
	var verr *validation.Error
	if errors.As(err, &verr) {
		return verr.Code
	}
	return "invalid_request_body"
}

func formatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
