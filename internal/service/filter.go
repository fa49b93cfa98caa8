package service

import (
	"catalog-frontend/internal/models"
	"catalog-frontend/internal/validation"
)

// Price slider bounds; a reset returns the range to these.
const (
	MinPriceBound = 0
	MaxPriceBound = 1000
)

// Filter is the transient catalog filter. An empty Category matches all.
type Filter struct {
	Category string
	Low      float64
	High     float64
}

// ResetFilter returns the filter with no category and the full price range.
func ResetFilter() Filter {
	return Filter{Low: MinPriceBound, High: MaxPriceBound}
}

// ParseFilter builds a filter from query parameters. Missing or unparsable
// bounds fall back to the slider bounds.
func ParseFilter(category, low, high string, reset bool) Filter {
	f := ResetFilter()
	if reset {
		return f
	}
	f.Category = category
	if v := validation.ParseNumber(low); v != nil {
		f.Low = clamp(*v)
	}
	if v := validation.ParseNumber(high); v != nil {
		f.High = clamp(*v)
	}
	if f.Low > f.High {
		f.Low, f.High = f.High, f.Low
	}
	return f
}

func clamp(v float64) float64 {
	if v < MinPriceBound {
		return MinPriceBound
	}
	if v > MaxPriceBound {
		return MaxPriceBound
	}
	return v
}

// IsReset reports whether f equals ResetFilter().
func (f Filter) IsReset() bool {
	return f == ResetFilter()
}

// Match reports whether p passes the filter.
func (f Filter) Match(p models.Product) bool {
	if !p.Price.Valid() {
		return false
	}
	price := float64(p.Price)
	if price < f.Low || price > f.High {
		return false
	}
	return f.Category == "" || p.Category == f.Category
}

// Apply returns the products that pass the filter, in their original order.
func (f Filter) Apply(products []models.Product) []models.Product {
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// Categories returns the distinct non-empty categories in first-seen order.
func Categories(products []models.Product) []string {
	seen := make(map[string]struct{}, len(products))
	out := []string{}
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}
