package validation

import (
	"strings"
)

// ProductInput is the raw creation form.
type ProductInput struct {
	ProductName string `form:"productName"`
	Description string `form:"description"`
	Price       string `form:"price"`
	Category    string `form:"category"`
	Quantity    string `form:"quantity"`
	Tags        string `form:"tags"`
	ImageURL    string `form:"imageUrl"`
}

// MaxQuantity matches the lte bound on ProductForm.Quantity.
const MaxQuantity = 1000000

// ProductForm is the coerced creation form.
type ProductForm struct {
	ProductName string   `form:"productName" validate:"required"`
	Description string   `form:"description" validate:"required"`
	Price       *float64 `form:"price" validate:"required,gt=0"`
	Category    string   `form:"category" validate:"required"`
	Quantity    *float64 `form:"quantity" validate:"required,whole,gt=0,lte=1000000"`
	Tags        string   `form:"tags"`
	ImageURL    string   `form:"imageUrl" validate:"omitempty,url"`
}

var productMessages = messages{
	"productName":       "Product name is required",
	"description":       "Description is required",
	"price.required":    "Price is required",
	"price":             "Price must be a positive number",
	"category":          "Category is required",
	"quantity.required": "Quantity is required",
	"quantity.lte":      "Quantity must be at most 1000000",
	"quantity":          "Quantity must be a positive integer",
	"imageUrl":          "Image URL must be a valid URL",
}

// ParseProduct trims the text fields and coerces the numeric ones.
func ParseProduct(in ProductInput) ProductForm {
	return ProductForm{
		ProductName: strings.TrimSpace(in.ProductName),
		Description: strings.TrimSpace(in.Description),
		Price:       ParseNumber(in.Price),
		Category:    strings.TrimSpace(in.Category),
		Quantity:    ParseNumber(in.Quantity),
		Tags:        strings.TrimSpace(in.Tags),
		ImageURL:    strings.TrimSpace(in.ImageURL),
	}
}

// Validate returns nil when the form is valid.
func (f ProductForm) Validate() Errors {
	return run(f, productMessages)
}

// TagList splits the comma-separated tags, trimming each and dropping blanks.
func (f ProductForm) TagList() []string {
	tags := []string{}
	if f.Tags == "" {
		return tags
	}
	for _, t := range strings.Split(f.Tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
