package models

import "time"

// Event types
const (
	EventTypeProductCreated  = "PRODUCT_CREATED"
	EventTypeProductUpdated  = "PRODUCT_UPDATED"
	EventTypeProductDeleted  = "PRODUCT_DELETED"
	EventTypeReviewSubmitted = "REVIEW_SUBMITTED"
)

// CatalogEvent announces a successful mutation so other front end instances
// can invalidate their request caches.
type CatalogEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	ProductID string    `json:"product_id"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}
