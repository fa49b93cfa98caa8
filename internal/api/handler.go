package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"catalog-frontend/internal/models"
	"catalog-frontend/internal/query"
	"catalog-frontend/internal/service"
	"catalog-frontend/internal/util"
	"catalog-frontend/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	catalogFetchError = "Error fetching products."
	detailFetchError  = "Error fetching product or reviews."
	failureListLimit  = 50
)

// CatalogService is what the views need from service.CatalogService.
type CatalogService interface {
	Catalog(ctx context.Context, f service.Filter) (*service.CatalogView, error)
	ProductDetail(ctx context.Context, id string) (*service.Detail, error)
	CreateProduct(ctx context.Context, token string, in validation.ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, token, id string, edit service.ProductEdit) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	SubmitReview(ctx context.Context, token string, in validation.ReviewInput) (*models.Review, error)
	WatchProducts(fn func(query.State)) func()
}

// FailureJournal lists recent mutation failures.
type FailureJournal interface {
	RecentFailures(ctx context.Context, limit int) ([]models.MutationFailure, error)
}

// ReadinessCheck reports whether an optional backend is reachable.
type ReadinessCheck func(ctx context.Context) error

// Option configures a Handler.
type Option func(*Handler)

// WithFailureJournal enables GET /diagnostics/failures.
func WithFailureJournal(j FailureJournal) Option {
	return func(h *Handler) { h.failures = j }
}

// WithReadinessCheck adds a named check to GET /ready.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(h *Handler) { h.checks[name] = check }
}

// Handler contains HTTP handlers
type Handler struct {
	catalog  CatalogService
	failures FailureJournal
	checks   map[string]ReadinessCheck
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(catalog CatalogService, opts ...Option) *Handler {
	h := &Handler{
		catalog: catalog,
		checks:  make(map[string]ReadinessCheck),
		logger:  util.Named("http"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.SetHTMLTemplate(loadTemplates())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/", h.catalogPage)
	router.GET("/createproduct/", h.createProductPage)
	router.GET("/product/:id", h.productDetail)
	router.GET("/events/products", h.productEvents)

	router.POST("/products", h.createProduct)
	router.POST("/products/:id/update", h.updateProduct)
	router.POST("/products/:id/delete", h.deleteProduct)
	router.POST("/product/:id/reviews", h.submitReview)

	router.GET("/diagnostics/failures", h.recentFailures)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck runs every configured backend check
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": results,
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) catalogPage(c *gin.Context) {
	h.renderCatalog(c, http.StatusOK, nil, nil)
}

// renderCatalog fetches the list and renders the catalog. A nil create or
// edit is taken from the ?create and ?edit query parameters.
func (h *Handler) renderCatalog(c *gin.Context, status int, create *createPanel, edit *editModal) {
	f := service.ParseFilter(c.Query("category"), c.Query("min"), c.Query("max"), c.Query("reset") == "1")

	view, err := h.catalog.Catalog(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("Failed to load catalog", zap.Error(err))
		c.HTML(http.StatusBadGateway, "catalog.html", catalogPage{
			page: page{Title: "Products", Error: catalogFetchError},
		})
		return
	}

	if create == nil && c.Query("create") == "1" {
		create = newCreatePanel(fromCatalog)
	}
	if edit == nil {
		if id := c.Query("edit"); id != "" {
			if p, ok := view.Lookup(id); ok {
				edit = newEditModal(p)
			}
		}
	}

	c.HTML(status, "catalog.html", catalogPage{
		page:     page{Title: "Products"},
		View:     view,
		MinBound: service.MinPriceBound,
		MaxBound: service.MaxPriceBound,
		Create:   create,
		Edit:     edit,
	})
}

func (h *Handler) createProductPage(c *gin.Context) {
	data := createProductPage{page: page{Title: "Create Product"}}
	if c.Query("create") == "1" {
		data.Create = newCreatePanel(fromCreateProduct)
	}
	c.HTML(http.StatusOK, "createproduct.html", data)
}

// createProduct handles the creation form. Success closes the panel; any
// failure keeps it open with the submitted values.
func (h *Handler) createProduct(c *gin.Context) {
	var in validation.ProductInput
	if err := c.ShouldBind(&in); err != nil {
		c.String(http.StatusBadRequest, "invalid form")
		return
	}
	from := c.PostForm("from")
	token := c.PostForm("token")

	_, err := h.catalog.CreateProduct(c.Request.Context(), token, in)
	if err == nil {
		if from == fromCreateProduct {
			c.Redirect(http.StatusSeeOther, "/createproduct/")
			return
		}
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	panel := &createPanel{Open: true, From: from, Token: token, Form: in}
	if fe, ok := validation.AsErrors(err); ok {
		panel.Errors = fe
	} else {
		h.logger.Warn("Product creation failed", zap.Error(err))
	}

	status := statusFor(err)
	if from == fromCreateProduct {
		c.HTML(status, "createproduct.html", createProductPage{
			page:   page{Title: "Create Product"},
			Create: panel,
		})
		return
	}
	panel.From = fromCatalog
	h.renderCatalog(c, status, panel, nil)
}

// updateProduct handles the update modal. Failure keeps the modal open with
// the submitted values and no field message.
func (h *Handler) updateProduct(c *gin.Context) {
	id := c.Param("id")
	var edit service.ProductEdit
	if err := c.ShouldBind(&edit); err != nil {
		c.String(http.StatusBadRequest, "invalid form")
		return
	}
	token := c.PostForm("token")

	_, err := h.catalog.UpdateProduct(c.Request.Context(), token, id, edit)
	if err == nil {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	h.logger.Warn("Product update failed", zap.String("product_id", id), zap.Error(err))
	if errors.Is(err, service.ErrProductNotFound) {
		h.renderCatalog(c, http.StatusNotFound, nil, nil)
		return
	}
	h.renderCatalog(c, statusFor(err), nil, &editModal{ID: id, Token: token, Form: edit})
}

// deleteProduct deletes without confirmation. A failure is only logged.
func (h *Handler) deleteProduct(c *gin.Context) {
	id := c.Param("id")
	if err := h.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		h.logger.Warn("Product delete failed", zap.String("product_id", id), zap.Error(err))
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *Handler) productDetail(c *gin.Context) {
	h.renderDetail(c, http.StatusOK, c.Param("id"), nil)
}

func (h *Handler) renderDetail(c *gin.Context, status int, id string, review *reviewPanel) {
	detail, err := h.catalog.ProductDetail(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load product detail", zap.String("product_id", id), zap.Error(err))
		c.HTML(http.StatusBadGateway, "detail.html", detailPage{
			page: page{Title: "Product", Error: detailFetchError},
		})
		return
	}
	if review == nil {
		review = newReviewPanel(id)
	}
	c.HTML(status, "detail.html", detailPage{
		page:   page{Title: detail.Product.Name},
		Detail: detail,
		Review: review,
	})
}

// submitReview handles the review form. Success reloads the detail page with
// a cleared form.
func (h *Handler) submitReview(c *gin.Context) {
	id := c.Param("id")
	var in validation.ReviewInput
	if err := c.ShouldBind(&in); err != nil {
		c.String(http.StatusBadRequest, "invalid form")
		return
	}
	in.ProductID = id
	token := c.PostForm("token")

	_, err := h.catalog.SubmitReview(c.Request.Context(), token, in)
	if err == nil {
		c.Redirect(http.StatusSeeOther, "/product/"+url.PathEscape(id))
		return
	}

	panel := &reviewPanel{Token: token, Form: in}
	if fe, ok := validation.AsErrors(err); ok {
		panel.Errors = fe
	} else {
		h.logger.Warn("Review submission failed", zap.String("product_id", id), zap.Error(err))
	}
	h.renderDetail(c, statusFor(err), id, panel)
}

// productEvents streams a "products" event each time the product list is
// refetched after an invalidation, so open catalog pages can reload.
func (h *Handler) productEvents(c *gin.Context) {
	updates := make(chan query.State, 1)
	stop := h.catalog.WatchProducts(func(s query.State) {
		select {
		case updates <- s:
		default:
		}
	})
	defer stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case s := <-updates:
			c.SSEvent("products", s.Status.String())
			return true
		}
	})
}

func (h *Handler) recentFailures(c *gin.Context) {
	if h.failures == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Failure journal is disabled"})
		return
	}

	limit := failureListLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 && v <= failureListLimit {
		limit = v
	}

	failures, err := h.failures.RecentFailures(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to list failures",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"failures": failures})
}

func statusFor(err error) int {
	if _, ok := validation.AsErrors(err); ok || errors.Is(err, service.ErrInvalidEdit) {
		return http.StatusUnprocessableEntity
	}
	switch {
	case errors.Is(err, service.ErrSubmissionInFlight):
		return http.StatusConflict
	case errors.Is(err, service.ErrProductNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
