package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"catalog-frontend/internal/apiclient"
	"catalog-frontend/internal/models"
	"catalog-frontend/internal/query"
	"catalog-frontend/internal/util"
	"catalog-frontend/internal/validation"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	ErrSubmissionInFlight = errors.New("submission already in progress")
	ErrProductNotFound    = errors.New("product not found in catalog")
	ErrInvalidEdit        = errors.New("invalid product edit")
)

const submissionLockTTL = 30 * time.Second

// KeyProducts is the cache key of the product list.
const KeyProducts = query.Key("products")

// ProductKey is the cache key of one product.
func ProductKey(id string) query.Key { return query.KeyOf("product", id) }

// ReviewsKey is the cache key of one product's reviews.
func ReviewsKey(id string) query.Key { return query.KeyOf("reviews", id) }

// ProductAPI is the remote product/review API.
type ProductAPI interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error)
	UpdateProduct(ctx context.Context, id string, product *models.Product) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ListReviews(ctx context.Context, productID string) ([]models.Review, error)
	CreateReview(ctx context.Context, req *models.ReviewRequest) (*models.Review, error)
}

// EventPublisher announces successful mutations.
type EventPublisher interface {
	PublishCatalogEvent(ctx context.Context, event *models.CatalogEvent) error
}

// FailureRecorder keeps the diagnostic journal of failed mutations.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, failure *models.MutationFailure) error
}

// Deps are the collaborators of CatalogService. API and Cache are required.
type Deps struct {
	API        ProductAPI
	Cache      *query.Client
	Locker     Locker
	Events     EventPublisher
	Failures   FailureRecorder
	InstanceID string
	Now        func() time.Time
}

// ProductEdit holds the raw fields of the update modal.
type ProductEdit struct {
	Name        string `form:"name"`
	ImageURL    string `form:"imageUrl"`
	Description string `form:"description"`
	Price       string `form:"price"`
	Category    string `form:"category"`
}

// CatalogView is what the catalog page renders.
type CatalogView struct {
	Filter     Filter
	Categories []string
	Products   []models.Product
	Total      int

	all []models.Product
}

// Lookup returns a copy of product id from the unfiltered list.
func (v *CatalogView) Lookup(id string) (*models.Product, bool) {
	for _, p := range v.all {
		if p.ID == id {
			c := p.Clone()
			return &c, true
		}
	}
	return nil, false
}

// Detail is what the product detail page renders.
type Detail struct {
	Status  query.Status
	Product *models.Product
	Reviews []models.Review
}

type updateInput struct {
	id      string
	product *models.Product
}

// CatalogService drives the catalog, detail and creation views.
type CatalogService struct {
	api        ProductAPI
	cache      *query.Client
	locker     Locker
	events     EventPublisher
	failures   FailureRecorder
	instanceID string
	now        func() time.Time
	logger     *zap.Logger

	createMutation *query.Mutation[*models.Product, *models.Product]
	updateMutation *query.Mutation[updateInput, *models.Product]
	deleteMutation *query.Mutation[string, struct{}]
	reviewMutation *query.Mutation[*models.ReviewRequest, *models.Review]
}

// NewCatalogService creates a new catalog service
func NewCatalogService(deps Deps) *CatalogService {
	s := &CatalogService{
		api:        deps.API,
		cache:      deps.Cache,
		locker:     deps.Locker,
		events:     deps.Events,
		failures:   deps.Failures,
		instanceID: deps.InstanceID,
		now:        deps.Now,
		logger:     util.Named("catalog"),
	}
	if s.locker == nil {
		s.locker = NewMemoryLocker()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.instanceID == "" {
		s.instanceID = uuid.New().String()
	}

	s.createMutation = query.NewMutation(models.MutationCreateProduct, s.cache,
		func(ctx context.Context, p *models.Product) (*models.Product, error) {
			return s.api.CreateProduct(ctx, p)
		},
		query.MutationConfig[*models.Product, *models.Product]{
			OnSuccess: func(ctx context.Context, _ *models.Product, created *models.Product) {
				s.logger.Info("Product created", zap.String("product_id", created.ID))
				s.publish(ctx, models.EventTypeProductCreated, created.ID)
			},
			OnError: func(ctx context.Context, p *models.Product, err error) {
				s.recordFailure(ctx, models.MutationCreateProduct, "", p, err)
			},
		})

	s.updateMutation = query.NewMutation(models.MutationUpdateProduct, s.cache,
		func(ctx context.Context, in updateInput) (*models.Product, error) {
			return s.api.UpdateProduct(ctx, in.id, in.product)
		},
		query.MutationConfig[updateInput, *models.Product]{
			Invalidates: func(in updateInput, _ *models.Product) []query.Key {
				return []query.Key{KeyProducts, ProductKey(in.id)}
			},
			OnSuccess: func(ctx context.Context, in updateInput, _ *models.Product) {
				s.logger.Info("Product updated", zap.String("product_id", in.id))
				s.publish(ctx, models.EventTypeProductUpdated, in.id)
			},
			OnError: func(ctx context.Context, in updateInput, err error) {
				s.recordFailure(ctx, models.MutationUpdateProduct, in.id, in.product, err)
			},
		})

	s.deleteMutation = query.NewMutation(models.MutationDeleteProduct, s.cache,
		func(ctx context.Context, id string) (struct{}, error) {
			return struct{}{}, s.api.DeleteProduct(ctx, id)
		},
		query.MutationConfig[string, struct{}]{
			Invalidates: func(id string, _ struct{}) []query.Key {
				return []query.Key{KeyProducts, ProductKey(id)}
			},
			OnSuccess: func(ctx context.Context, id string, _ struct{}) {
				s.logger.Info("Product deleted", zap.String("product_id", id))
				s.publish(ctx, models.EventTypeProductDeleted, id)
			},
			OnError: func(ctx context.Context, id string, err error) {
				s.recordFailure(ctx, models.MutationDeleteProduct, id, nil, err)
			},
		})

	// Reviews are not invalidated: a new review shows up on the next visit.
	s.reviewMutation = query.NewMutation(models.MutationCreateReview, s.cache,
		func(ctx context.Context, req *models.ReviewRequest) (*models.Review, error) {
			return s.api.CreateReview(ctx, req)
		},
		query.MutationConfig[*models.ReviewRequest, *models.Review]{
			OnSuccess: func(ctx context.Context, req *models.ReviewRequest, _ *models.Review) {
				s.logger.Info("Review submitted", zap.String("product_id", req.ProductID))
				s.publish(ctx, models.EventTypeReviewSubmitted, req.ProductID)
			},
			OnError: func(ctx context.Context, req *models.ReviewRequest, err error) {
				s.recordFailure(ctx, models.MutationCreateReview, req.ProductID, req, err)
			},
		})

	return s
}

// InstanceID identifies this front end instance in published events.
func (s *CatalogService) InstanceID() string {
	return s.instanceID
}

// ListProducts returns the full product list through the request cache.
func (s *CatalogService) ListProducts(ctx context.Context) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ListProducts")
	defer span.End()

	data, err := s.cache.Fetch(ctx, KeyProducts, func(ctx context.Context) (interface{}, error) {
		return s.api.ListProducts(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	products, _ := data.([]models.Product)
	return products, nil
}

// Catalog fetches the product list and applies f to it.
func (s *CatalogService) Catalog(ctx context.Context, f Filter) (*CatalogView, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return NewCatalogView(f, products), nil
}

// NewCatalogView filters products with f.
func NewCatalogView(f Filter, products []models.Product) *CatalogView {
	return &CatalogView{
		Filter:     f,
		Categories: Categories(products),
		Products:   f.Apply(products),
		Total:      len(products),
		all:        products,
	}
}

// FindProduct returns the local copy of one product from the list.
func (s *CatalogService) FindProduct(ctx context.Context, id string) (*models.Product, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		if p.ID == id {
			c := p.Clone()
			return &c, nil
		}
	}
	return nil, ErrProductNotFound
}

// ProductDetail fetches one product and its reviews concurrently. Either
// failing fails the whole view.
func (s *CatalogService) ProductDetail(ctx context.Context, id string) (*Detail, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.ProductDetail", attribute.String("product.id", id))
	defer span.End()

	var (
		wg                    sync.WaitGroup
		product               *models.Product
		reviews               []models.Review
		productErr, reviewErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		data, err := s.cache.Fetch(ctx, ProductKey(id), func(ctx context.Context) (interface{}, error) {
			return s.api.GetProduct(ctx, id)
		})
		if err != nil {
			productErr = err
			return
		}
		product, _ = data.(*models.Product)
	}()
	go func() {
		defer wg.Done()
		data, err := s.cache.Fetch(ctx, ReviewsKey(id), func(ctx context.Context) (interface{}, error) {
			return s.api.ListReviews(ctx, id)
		})
		if err != nil {
			reviewErr = err
			return
		}
		reviews, _ = data.([]models.Review)
	}()
	wg.Wait()

	detail := &Detail{
		Status: query.CombineStatus(statusOf(productErr), statusOf(reviewErr)),
	}
	if detail.Status != query.StatusSuccess {
		return detail, fmt.Errorf("failed to fetch product %s: %w", id, errors.Join(productErr, reviewErr))
	}
	if product == nil {
		detail.Status = query.StatusError
		return detail, fmt.Errorf("failed to fetch product %s: empty response", id)
	}
	detail.Product = product
	detail.Reviews = reviews
	return detail, nil
}

func statusOf(err error) query.Status {
	if err != nil {
		return query.StatusError
	}
	return query.StatusSuccess
}

// BuildProduct normalizes a validated creation form and fills in the fixed
// and derived fields.
func BuildProduct(form validation.ProductForm, now time.Time) *models.Product {
	qty := 1
	if q := form.Quantity; q != nil && *q > 1 {
		qty = int(math.Min(*q, validation.MaxQuantity))
	}
	var price models.Price
	if form.Price != nil {
		price = models.Price(*form.Price)
	}
	images := []string{}
	if form.ImageURL != "" {
		images = []string{form.ImageURL}
	}

	return &models.Product{
		Name:             form.ProductName,
		Description:      form.Description,
		Price:            price,
		Category:         form.Category,
		Tags:             form.TagList(),
		Use:              models.UseForRent,
		MinimumQuantity:  qty,
		SellingPrice:     price,
		AddedBy:          models.DefaultAddedBy,
		ExpiresAt:        models.FormatExpiry(now.Add(models.ProductLifetime)),
		QuantityOnHand:   qty,
		ReservedQuantity: models.DefaultReservedQty,
		Discount:         models.DefaultDiscountPercent,
		ImageURLs:        images,
	}
}

// CreateProduct validates the creation form and posts the product. Invalid
// input returns validation.Errors without any network call.
func (s *CatalogService) CreateProduct(ctx context.Context, token string, in validation.ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	form := validation.ParseProduct(in)
	if errs := form.Validate(); errs != nil {
		util.ValidationRejectionsTotal.WithLabelValues("product").Inc()
		return nil, errs
	}

	release, err := s.guard(ctx, token)
	if err != nil {
		return nil, err
	}
	defer release()

	product := BuildProduct(form, s.now())
	s.logger.Debug("Submitting product", zap.Any("product", product))
	return s.createMutation.Mutate(ctx, product)
}

// ApplyEdit copies the modal fields onto the local copy p.
func ApplyEdit(p *models.Product, edit ProductEdit) error {
	price := validation.ParseNumber(edit.Price)
	if price == nil {
		return fmt.Errorf("%w: price %q", ErrInvalidEdit, edit.Price)
	}
	p.Name = edit.Name
	p.Description = edit.Description
	p.Category = edit.Category
	p.Price = models.Price(*price)
	if edit.ImageURL != "" {
		p.ImageURLs = []string{edit.ImageURL}
	} else {
		p.ImageURLs = []string{}
	}
	return nil
}

// UpdateProduct applies edit to the local copy of product id and sends the
// whole copy. Success invalidates the product list.
func (s *CatalogService) UpdateProduct(ctx context.Context, token, id string, edit ProductEdit) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct", attribute.String("product.id", id))
	defer span.End()

	local, err := s.FindProduct(ctx, id)
	if err != nil {
		s.logger.Error("Failed to load product for update", zap.String("product_id", id), zap.Error(err))
		return nil, err
	}
	if err := ApplyEdit(local, edit); err != nil {
		s.recordFailure(ctx, models.MutationUpdateProduct, id, edit, err)
		return nil, err
	}

	release, err := s.guard(ctx, token)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.updateMutation.Mutate(ctx, updateInput{id: id, product: local})
}

// DeleteProduct deletes product id. Success invalidates the product list.
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.DeleteProduct", attribute.String("product.id", id))
	defer span.End()

	_, err := s.deleteMutation.Mutate(ctx, id)
	return err
}

// SubmitReview validates the review form and posts it. Invalid input returns
// validation.Errors without any network call.
func (s *CatalogService) SubmitReview(ctx context.Context, token string, in validation.ReviewInput) (*models.Review, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.SubmitReview")
	defer span.End()

	form := validation.ParseReview(in)
	if errs := form.Validate(); errs != nil {
		util.ValidationRejectionsTotal.WithLabelValues("review").Inc()
		return nil, errs
	}

	release, err := s.guard(ctx, token)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.reviewMutation.Mutate(ctx, &models.ReviewRequest{
		ProductID:    form.ProductID,
		ReviewerName: form.ReviewerName,
		Rating:       form.RatingValue(),
		Comment:      form.Comment,
	})
}

// WatchProducts calls fn whenever the product list is refetched after an
// invalidation.
func (s *CatalogService) WatchProducts(fn func(query.State)) func() {
	return s.cache.Subscribe(KeyProducts, func(st query.State) {
		if st.Refetched {
			fn(st)
		}
	})
}

// HandleCatalogEvent invalidates the keys touched by a mutation made on
// another instance.
func (s *CatalogService) HandleCatalogEvent(ctx context.Context, event *models.CatalogEvent) error {
	if event.Origin == s.instanceID {
		return nil
	}

	s.logger.Debug("Applying remote catalog event",
		zap.String("event_id", event.EventID),
		zap.String("type", event.EventType),
		zap.String("origin", event.Origin))

	switch event.EventType {
	case models.EventTypeProductCreated:
		s.cache.Invalidate(KeyProducts)
	case models.EventTypeProductUpdated, models.EventTypeProductDeleted:
		s.cache.Invalidate(KeyProducts, ProductKey(event.ProductID))
	case models.EventTypeReviewSubmitted:
		s.cache.Invalidate(ReviewsKey(event.ProductID))
	default:
		s.logger.Warn("Unhandled catalog event type", zap.String("type", event.EventType))
	}
	return nil
}

func (s *CatalogService) guard(ctx context.Context, token string) (func(), error) {
	if token == "" {
		return func() {}, nil
	}
	key := "submit:" + token
	ok, err := s.locker.AcquireLock(ctx, key, submissionLockTTL)
	if err != nil {
		// the guard is best effort; a lock backend outage must not block writes
		s.logger.Warn("Submission guard unavailable", zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, ErrSubmissionInFlight
	}
	return func() {
		if err := s.locker.ReleaseLock(context.Background(), key); err != nil {
			s.logger.Warn("Failed to release submission guard", zap.Error(err))
		}
	}, nil
}

func (s *CatalogService) publish(ctx context.Context, eventType, productID string) {
	if s.events == nil {
		return
	}
	event := &models.CatalogEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		ProductID: productID,
		Origin:    s.instanceID,
		Timestamp: s.now(),
	}
	if err := s.events.PublishCatalogEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish catalog event",
			zap.String("type", eventType),
			zap.Error(err))
	}
}

func (s *CatalogService) recordFailure(ctx context.Context, kind, productID string, payload interface{}, err error) {
	fields := []zap.Field{
		zap.String("kind", kind),
		zap.String("product_id", productID),
		zap.Error(err),
	}

	failure := &models.MutationFailure{
		Kind:       kind,
		ProductID:  productID,
		Detail:     err.Error(),
		OccurredAt: s.now(),
	}

	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		failure.StatusCode = apiErr.StatusCode
		fields = append(fields,
			zap.Int("status", apiErr.StatusCode),
			zap.String("response_body", apiErr.Body),
			zap.Any("response_headers", apiErr.Header))
	}
	if payload != nil {
		if data, merr := json.Marshal(payload); merr == nil {
			failure.Payload = string(data)
		}
	}

	s.logger.Error("Mutation failed", fields...)

	if s.failures == nil {
		return
	}
	if rerr := s.failures.RecordFailure(context.WithoutCancel(ctx), failure); rerr != nil {
		s.logger.Warn("Failed to journal mutation failure", zap.Error(rerr))
	}
}
