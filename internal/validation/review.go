package validation

import "strings"

// ReviewInput is the raw review form.
type ReviewInput struct {
	ProductID    string `form:"productId"`
	ReviewerName string `form:"reviewerName"`
	Rating       string `form:"rating"`
	Comment      string `form:"comment"`
}

// ReviewForm is the coerced review form.
type ReviewForm struct {
	ProductID    string   `form:"productId" validate:"required"`
	ReviewerName string   `form:"reviewerName" validate:"required"`
	Rating       *float64 `form:"rating" validate:"required,whole,min=1,max=5"`
	Comment      string   `form:"comment" validate:"required"`
}

var reviewMessages = messages{
	"productId":    "Product ID is required",
	"reviewerName": "Name is required",
	"rating":       "Rating is required",
	"rating.whole": "Rating must be a whole number",
	"rating.min":   "Rating must be at least 1",
	"rating.max":   "Rating must be at most 5",
	"comment":      "Comment is required",
}

// ParseReview coerces the raw review form.
func ParseReview(in ReviewInput) ReviewForm {
	return ReviewForm{
		ProductID:    strings.TrimSpace(in.ProductID),
		ReviewerName: strings.TrimSpace(in.ReviewerName),
		Rating:       ParseNumber(in.Rating),
		Comment:      strings.TrimSpace(in.Comment),
	}
}

// Validate returns nil when the form is valid.
func (f ReviewForm) Validate() Errors {
	return run(f, reviewMessages)
}

// RatingValue returns the rating; only meaningful after Validate passed.
func (f ReviewForm) RatingValue() int {
	if f.Rating == nil {
		return 0
	}
	return int(*f.Rating)
}
