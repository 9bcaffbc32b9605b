package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/product/domain"
	"github.com/smallbiznis/storefront/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Processor paymentdomain.Processor
	Clock     clock.Clock
	Config    config.Config
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      domain.Repository
	genID     *snowflake.Node
	processor paymentdomain.Processor
	clock     clock.Clock
	currency  string
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	currency := strings.ToLower(strings.TrimSpace(p.Config.Checkout.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("product.service"),
		repo:      p.Repo,
		genID:     p.GenID,
		processor: p.Processor,
		clock:     clk,
		currency:  currency,
		metrics:   p.Metrics,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	filter := domain.ListFilter{
		Name: strings.TrimSpace(req.Name),
	}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			return nil, err
		}
		filter.Status = &status
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	limit := page.Limit()
	filter.Limit = limit + 1

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, domain.ErrInvalidCursor
		}
		id, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, domain.ErrInvalidCursor
		}
		filter.CursorID = id
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	items, info := pagination.BuildCursorPageInfo(items, limit, func(p domain.Product) string {
		return strconv.FormatInt(p.ID, 10)
	})

	resp := &domain.ListResponse{
		Products:      make([]domain.Response, 0, len(items)),
		NextPageToken: info.NextPageToken,
		HasMore:       info.HasMore,
	}
	for i := range items {
		resp.Products = append(resp.Products, toResponse(&items[i], nil))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toResponse(item, nil)
	return &resp, nil
}

// Create registers the external twin and its initial price before the local
// row is written, so a persisted product always has a usable price reference.
func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	price := req.Price.Round(2)
	if !price.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}
	if req.StockQuantity < 0 {
		return nil, domain.ErrInvalidStock
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.currency
	}
	if len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}

	now := s.clock.Now()
	item := &domain.Product{
		ID:            s.genID.Generate().Int64(),
		Name:          name,
		Description:   normalizeOptional(req.Description),
		ImageURL:      normalizeOptional(req.ImageURL),
		Price:         price,
		Currency:      currency,
		StockQuantity: req.StockQuantity,
		Status:        domain.StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.provisionTwin(ctx, item); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, s.db, item); err != nil {
		s.archiveOrphan(ctx, item.ExternalProductID)
		return nil, err
	}

	report := domain.SyncReport{State: domain.SyncStateSynced}
	s.recordSync(ctx, "create", report)
	s.log.Info("product created",
		zap.Int64("product_id", item.ID),
		zap.String("external_product_id", item.ExternalProductID),
		zap.String("price_ref", item.PriceRef),
	)

	resp := toResponse(item, &report)
	return &resp, nil
}

// Update applies local changes and keeps the external twin aligned. Price
// changes must reach the processor before anything is persisted; failures on
// descriptive fields only degrade the result.
func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	item, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	next := *item
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		next.Name = name
	}
	if req.Description != nil {
		next.Description = normalizeOptional(req.Description)
	}
	if req.ImageURL != nil {
		next.ImageURL = normalizeOptional(req.ImageURL)
	}
	if req.StockQuantity != nil {
		if *req.StockQuantity < 0 {
			return nil, domain.ErrInvalidStock
		}
		next.StockQuantity = *req.StockQuantity
	}
	priceChanged := false
	if req.Price != nil {
		price := req.Price.Round(2)
		if !price.IsPositive() {
			return nil, domain.ErrInvalidPrice
		}
		if !price.Equal(item.Price) {
			next.Price = price
			priceChanged = true
		}
	}

	report := domain.SyncReport{State: domain.SyncStateSynced}
	healed := false

	_, err = s.processor.UpdateProduct(ctx, next.ExternalProductID, productParams(&next, nil))
	switch {
	case err == nil:
	case paymentdomain.IsResourceMissing(err):
		s.log.Warn("external product missing, recreating",
			zap.Int64("product_id", next.ID),
			zap.String("external_product_id", next.ExternalProductID),
		)
		if err := s.provisionTwin(ctx, &next); err != nil {
			return nil, err
		}
		healed = true
		report.State = domain.SyncStateExternalMissing
	default:
		s.recordProcessorError(ctx, "update_product", err)
		s.log.Warn("external product update failed",
			zap.Int64("product_id", next.ID),
			zap.String("external_product_id", next.ExternalProductID),
			zap.Error(err),
		)
		report.Degrade("external product update failed")
	}

	if priceChanged && !healed {
		price, err := s.processor.CreatePrice(ctx, paymentdomain.PriceParams{
			ProductID:  next.ExternalProductID,
			UnitAmount: next.UnitAmount(),
			Currency:   next.Currency,
		})
		switch {
		case err == nil:
			next.PriceRef = price.ID
			report.State = domain.SyncStatePriceChanged
		case paymentdomain.IsResourceMissing(err):
			if err := s.provisionTwin(ctx, &next); err != nil {
				return nil, err
			}
			report.State = domain.SyncStateExternalMissing
		default:
			s.recordProcessorError(ctx, "create_price", err)
			return nil, err
		}
	}

	next.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, &next); err != nil {
		return nil, err
	}

	s.recordSync(ctx, "update", report)
	s.log.Info("product updated",
		zap.Int64("product_id", next.ID),
		zap.String("sync_state", string(report.State)),
		zap.Bool("degraded", report.Degraded),
	)

	resp := toResponse(&next, &report)
	return &resp, nil
}

func (s *Service) load(ctx context.Context, id string) (*domain.Product, error) {
	productID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || productID <= 0 {
		return nil, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, productID.Int64())
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) recordSync(ctx context.Context, operation string, report domain.SyncReport) {
	s.metrics.RecordCatalogSync(ctx, operation, string(report.State), report.Degraded)
}

func (s *Service) recordProcessorError(ctx context.Context, operation string, err error) {
	s.metrics.RecordProcessorError(ctx, operation, string(paymentdomain.KindOf(err)))
}

func toResponse(p *domain.Product, report *domain.SyncReport) domain.Response {
	return domain.Response{
		ID:                snowflake.ID(p.ID).String(),
		Name:              p.Name,
		Description:       p.Description,
		ImageURL:          p.ImageURL,
		Price:             p.Price,
		Currency:          strings.ToUpper(p.Currency),
		StockQuantity:     p.StockQuantity,
		PriceRef:          p.PriceRef,
		ExternalProductID: p.ExternalProductID,
		Status:            p.Status,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
		Sync:              report,
	}
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func ptrToString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
