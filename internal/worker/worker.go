package worker

import (
	"context"

	"catalog-frontend/internal/broker"
	"catalog-frontend/internal/models"
	"catalog-frontend/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageSource is the consuming side of the broker.
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// CatalogEventHandler applies a catalog event to the local request cache.
type CatalogEventHandler interface {
	HandleCatalogEvent(ctx context.Context, event *models.CatalogEvent) error
}

// InvalidationWorker consumes catalog events published by other front end
// instances and invalidates the matching cache keys.
type InvalidationWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewInvalidationWorker creates a new invalidation worker
func NewInvalidationWorker(consumer MessageSource, handler CatalogEventHandler) *InvalidationWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnCatalogEvent(handler.HandleCatalogEvent)

	return &InvalidationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.Named("worker"),
	}
}

// Start blocks until ctx is done
func (w *InvalidationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting invalidation worker")
	return w.consumer.StartConsuming(ctx, w.handle)
}

func (w *InvalidationWorker) handle(ctx context.Context, msg kafka.Message) error {
	return w.eventHandler.HandleMessage(ctx, msg)
}

// Stop stops the worker
func (w *InvalidationWorker) Stop() error {
	w.logger.Info("Stopping invalidation worker")
	return w.consumer.Close()
}
