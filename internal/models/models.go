package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Fixed values sent with every created product.
const (
	UseForRent             = "for_rent"
	DefaultAddedBy         = "Mame"
	DefaultReservedQty     = 10
	DefaultDiscountPercent = 20
	ProductLifetime        = 365 * 24 * time.Hour
)

// Price is a product price. The remote API is not consistent about sending
// it as a number or a numeric string, so both are accepted. A string that is
// not a number decodes to NaN rather than failing the whole response.
type Price float64

// Valid reports whether p holds a usable number.
func (p Price) Valid() bool {
	return !math.IsNaN(float64(p)) && !math.IsInf(float64(p), 0)
}

func (p Price) MarshalJSON() ([]byte, error) {
	if !p.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(p))
}

func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*p = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			v = math.NaN()
		}
		*p = Price(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Price(v)
	return nil
}

// String formats the price with two decimals.
func (p Price) String() string {
	return strconv.FormatFloat(float64(p), 'f', 2, 64)
}

// Product is a catalog item as the remote API describes it. The client never
// assigns ID; it is echoed from the API.
type Product struct {
	ID               string   `json:"id,omitempty"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Price            Price    `json:"price"`
	Category         string   `json:"category"`
	Tags             []string `json:"tags"`
	Use              string   `json:"use,omitempty"`
	MinimumQuantity  int      `json:"minimumQuantity"`
	SellingPrice     Price    `json:"sellingPrice"`
	AddedBy          string   `json:"addedBy,omitempty"`
	ExpiresAt        string   `json:"expiresAt,omitempty"`
	QuantityOnHand   int      `json:"quantityOnHand"`
	ReservedQuantity int      `json:"reservedQuantity"`
	Discount         float64  `json:"discount"`
	ImageURLs        []string `json:"imageUrls"`
}

// FirstImage returns the first image URL or "".
func (p Product) FirstImage() string {
	if len(p.ImageURLs) == 0 {
		return ""
	}
	return p.ImageURLs[0]
}

// Expiry parses ExpiresAt; the zero time is returned when it is missing or malformed.
func (p Product) Expiry() time.Time {
	t, err := time.Parse(time.RFC3339Nano, p.ExpiresAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Clone returns a copy that shares no slices with p.
func (p Product) Clone() Product {
	c := p
	c.Tags = append([]string(nil), p.Tags...)
	c.ImageURLs = append([]string(nil), p.ImageURLs...)
	return c
}

// ProductList is the envelope returned by GET /products.
type ProductList struct {
	Data []Product `json:"data"`
}

// Review is a rating and comment tied to one product.
type Review struct {
	ID           string `json:"id,omitempty"`
	ProductID    string `json:"productId"`
	ReviewerName string `json:"reviewerName"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment"`
}

// ReviewRequest is the body of POST /reviews.
type ReviewRequest struct {
	ProductID    string `json:"productId"`
	ReviewerName string `json:"reviewerName"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment"`
}

// FormatExpiry renders t the way browsers render Date.toISOString.
func FormatExpiry(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// MutationFailure is one entry of the diagnostic failure journal.
type MutationFailure struct {
	ID         int64     `db:"id" json:"id"`
	Kind       string    `db:"kind" json:"kind"`
	ProductID  string    `db:"product_id" json:"productId,omitempty"`
	StatusCode int       `db:"status_code" json:"statusCode,omitempty"`
	Detail     string    `db:"detail" json:"detail"`
	Payload    string    `db:"payload" json:"payload,omitempty"`
	OccurredAt time.Time `db:"occurred_at" json:"occurredAt"`
}

// Mutation kinds
const (
	MutationCreateProduct = "create_product"
	MutationUpdateProduct = "update_product"
	MutationDeleteProduct = "delete_product"
	MutationCreateReview  = "create_review"
)
