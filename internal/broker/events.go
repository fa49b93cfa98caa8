package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"catalog-frontend/internal/models"
	"catalog-frontend/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing catalog events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishCatalogEvent publishes a catalog event keyed by product so events
// for one product stay ordered.
func (ep *EventPublisher) PublishCatalogEvent(ctx context.Context, event *models.CatalogEvent) error {
	key := fmt.Sprintf("product-%s", event.ProductID)
	if err := ep.producer.PublishEvent(ctx, key, event); err != nil {
		return err
	}
	util.CatalogEventsTotal.WithLabelValues("out", event.EventType).Inc()
	return nil
}

// EventHandler handles incoming events
type EventHandler struct {
	onCatalogEvent func(context.Context, *models.CatalogEvent) error
	logger         *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.Named("events")}
}

// OnCatalogEvent registers the handler for catalog events
func (eh *EventHandler) OnCatalogEvent(handler func(context.Context, *models.CatalogEvent) error) {
	eh.onCatalogEvent = handler
}

// HandleMessage decodes a message and routes it to the registered handler.
// Undecodable messages are dropped.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var event models.CatalogEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		eh.logger.Warn("Dropping undecodable event", zap.ByteString("key", msg.Key), zap.Error(err))
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("type", event.EventType),
		zap.String("id", event.EventID))
	util.CatalogEventsTotal.WithLabelValues("in", event.EventType).Inc()

	switch event.EventType {
	case models.EventTypeProductCreated,
		models.EventTypeProductUpdated,
		models.EventTypeProductDeleted,
		models.EventTypeReviewSubmitted:
		if eh.onCatalogEvent != nil {
			return eh.onCatalogEvent(ctx, &event)
		}
	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", event.EventType))
	}

	return nil
}
