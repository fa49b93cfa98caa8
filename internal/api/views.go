package api

import (
	"embed"
	"html/template"
	"strconv"
	"strings"
	"time"

	"catalog-frontend/internal/models"
	"catalog-frontend/internal/service"
	"catalog-frontend/internal/validation"

	"github.com/google/uuid"
)

//go:embed templates/*.html
var templateFS embed.FS

// Where a creation form was posted from.
const (
	fromCatalog       = "catalog"
	fromCreateProduct = "createproduct"
)

var templateFuncs = template.FuncMap{
	"join": strings.Join,
	"expiry": func(p *models.Product) string {
		t := p.Expiry()
		if t.IsZero() {
			return p.ExpiresAt
		}
		return t.Local().Format(time.RFC1123)
	},
	"fieldError": func(errs validation.Errors, field string) string {
		return errs[field]
	},
	"percent": func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	},
}

func loadTemplates() *template.Template {
	return template.Must(template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html"))
}

type page struct {
	Title string
	Error string
}

type catalogPage struct {
	page
	View     *service.CatalogView
	MinBound int
	MaxBound int
	Create   *createPanel
	Edit     *editModal
}

type createPanel struct {
	Open   bool
	From   string
	Token  string
	Form   validation.ProductInput
	Errors validation.Errors
}

type editModal struct {
	ID    string
	Token string
	Form  service.ProductEdit
}

type createProductPage struct {
	page
	Create *createPanel
}

type detailPage struct {
	page
	Detail *service.Detail
	Review *reviewPanel
}

type reviewPanel struct {
	Token  string
	Form   validation.ReviewInput
	Errors validation.Errors
}

func newToken() string {
	return uuid.New().String()
}

func newCreatePanel(from string) *createPanel {
	return &createPanel{Open: true, From: from, Token: newToken()}
}

// newEditModal pre-fills the update modal from the local copy of p.
func newEditModal(p *models.Product) *editModal {
	var price string
	if p.Price.Valid() {
		price = strconv.FormatFloat(float64(p.Price), 'f', -1, 64)
	}
	return &editModal{
		ID:    p.ID,
		Token: newToken(),
		Form: service.ProductEdit{
			Name:        p.Name,
			ImageURL:    p.FirstImage(),
			Description: p.Description,
			Price:       price,
			Category:    p.Category,
		},
	}
}

func newReviewPanel(productID string) *reviewPanel {
	return &reviewPanel{Token: newToken(), Form: validation.ReviewInput{ProductID: productID}}
}
