package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/virology-token-service/internal/logger"
	"github.com/imrishuroy/virology-token-service/internal/orders"
	"github.com/imrishuroy/virology-token-service/internal/virology"
)

// ResultPoster records lab results. virology.Service implements it.
type ResultPoster interface {
	PostResult(ctx context.Context, ctaToken string, result orders.Result) error
}

// Processor handles SQS batches of uploaded test results.
type Processor struct {
	results ResultPoster
	log     *zap.Logger
}

// NewProcessor creates a new worker processor.
func NewProcessor(results ResultPoster, log *zap.Logger) *Processor {
	return &Processor{results: results, log: log}
}

// Handle processes each message of the batch. Messages a retry cannot fix are logged and
// dropped; any other failure is returned so Lambda retries the batch and SQS eventually
// dead-letters it. Posting is idempotent, so redelivered messages are harmless.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	p.log.Debug("received SQS batch", zap.Int("records", len(ev.Records)))
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.log.Error("worker error", zap.String("messageId", rec.MessageId), zap.Error(err))
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	log := p.log.With(zap.String("messageId", rec.MessageId))

	var msg virology.ResultMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		log.Warn("dropping message with invalid body", zap.Error(err))
		return nil
	}
	log = log.With(
		zap.String("correlation_id", msg.CorrelationID),
		zap.String("ctaToken", logger.Redact(msg.CtaToken)),
	)

	err := p.results.PostResult(logger.WithContext(ctx, log), msg.CtaToken, orders.Result{
		TestResult:  msg.TestResult,
		TestEndDate: msg.TestEndDate,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, virology.ErrOrderNotPending),
		errors.Is(err, virology.ErrInvalidResult):
		log.Warn("dropping test result", zap.Error(err))
		return nil
	default:
		return fmt.Errorf("post test result: %w", err)
	}
}
