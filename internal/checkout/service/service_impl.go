package service

import (
	"context"
	"encoding/json"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/checkout/domain"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/observability/logger"
	"github.com/smallbiznis/storefront/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	productdomain "github.com/smallbiznis/storefront/internal/product/domain"
	stockdomain "github.com/smallbiznis/storefront/internal/stock/domain"
	"github.com/smallbiznis/storefront/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Products  productdomain.Repository
	Validator stockdomain.Validator
	Processor paymentdomain.Processor
	Config    config.Config
	Policy    *config.PolicyHolder `optional:"true"`
	Clock     clock.Clock
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	products  productdomain.Repository
	validator stockdomain.Validator
	processor paymentdomain.Processor
	urls      config.CheckoutConfig
	policy    *config.PolicyHolder
	clock     clock.Clock
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("checkout.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		products:  p.Products,
		validator: p.Validator,
		processor: p.Processor,
		urls:      p.Config.Checkout,
		policy:    p.Policy,
		clock:     clk,
		metrics:   p.Metrics,
	}
}

// CreateSession validates stock, opens an external checkout session and
// mirrors it locally. Stock is not held between validation and payment.
func (s *Service) CreateSession(ctx context.Context, req domain.CreateSessionRequest) (*domain.CreateSessionResult, error) {
	log := logger.WithContext(ctx, s.log)

	items, email, userID, err := s.normalize(req)
	if err != nil {
		s.metrics.RecordCheckoutSession(ctx, "invalid")
		return nil, err
	}

	resolved, err := s.validator.Validate(ctx, items)
	if err != nil {
		s.metrics.RecordCheckoutSession(ctx, "rejected")
		return nil, err
	}

	lineItems := make([]paymentdomain.SessionLineItem, 0, len(items))
	for _, item := range items {
		lineItems = append(lineItems, paymentdomain.SessionLineItem{
			Price:    resolved[item.Price].PriceRef,
			Quantity: item.Quantity,
		})
	}

	session, err := s.processor.CreateCheckoutSession(ctx, paymentdomain.SessionParams{
		LineItems:         lineItems,
		SuccessURL:        s.urls.SuccessURL,
		CancelURL:         s.urls.CancelURL,
		CustomerEmail:     email,
		ClientReferenceID: userID,
		Metadata:          map[string]string{"user_id": userID},
	})
	if err != nil {
		s.metrics.RecordCheckoutSession(ctx, "processor_error")
		s.metrics.RecordProcessorError(ctx, "create_checkout_session", string(paymentdomain.KindOf(err)))
		log.Error("create checkout session failed", zap.Error(err))
		return nil, err
	}

	result := &domain.CreateSessionResult{SessionID: session.ID}
	if err := s.mirror(ctx, session, items, email, userID, req.Address); err != nil && !db.IsDuplicateKeyErr(err) {
		log.Error("persist checkout session mirror failed",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		result.Degraded = true
		result.Reason = "local session mirror not persisted"
		s.metrics.RecordCheckoutSession(ctx, "degraded")
		return result, nil
	}

	s.metrics.RecordCheckoutSession(ctx, "created")
	log.Info("checkout session created",
		zap.String("session_id", session.ID),
		zap.Int("line_items", len(items)),
	)
	return result, nil
}

// GetSession prefers the local mirror and falls back to the processor.
// Processor errors are returned as they are.
func (s *Service) GetSession(ctx context.Context, id string) (*domain.SessionResponse, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}

	local, err := s.repo.FindByExternalID(ctx, s.db, id)
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("local session lookup failed, using processor",
			zap.String("session_id", id),
			zap.Error(err),
		)
	}
	if local != nil {
		return fromMirror(local)
	}

	session, err := s.processor.RetrieveCheckoutSession(ctx, id)
	if err != nil {
		s.metrics.RecordProcessorError(ctx, "retrieve_checkout_session", string(paymentdomain.KindOf(err)))
		return nil, err
	}
	return fromProcessor(session), nil
}

// GetSessionItems lists the processor's line items for a session and maps
// each one to the catalog product selling that price, in processor order.
func (s *Service) GetSessionItems(ctx context.Context, id string) ([]domain.SessionItem, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}

	lines, err := s.processor.ListCheckoutSessionLineItems(ctx, id)
	if err != nil {
		s.metrics.RecordProcessorError(ctx, "list_checkout_session_line_items", string(paymentdomain.KindOf(err)))
		return nil, err
	}

	refs := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if line.Price == "" {
			continue
		}
		if _, ok := seen[line.Price]; ok {
			continue
		}
		seen[line.Price] = struct{}{}
		refs = append(refs, line.Price)
	}

	products, err := s.products.FindByPriceRefs(ctx, s.db, refs)
	if err != nil {
		return nil, err
	}
	byPrice := make(map[string]string, len(products))
	for _, p := range products {
		byPrice[p.PriceRef] = snowflake.ID(p.ID).String()
	}

	out := make([]domain.SessionItem, 0, len(lines))
	for _, line := range lines {
		item := domain.SessionItem{Quantity: line.Quantity}
		if productID, ok := byPrice[line.Price]; ok {
			item.ProductID = &productID
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Service) normalize(req domain.CreateSessionRequest) ([]stockdomain.LineItem, string, string, error) {
	policy := s.policy.Get().Checkout

	if len(req.LineItems) == 0 {
		return nil, "", "", domain.ErrEmptyLineItems
	}
	if policy.MaxLineItems > 0 && len(req.LineItems) > policy.MaxLineItems {
		return nil, "", "", domain.ErrTooManyLineItems
	}

	items := make([]stockdomain.LineItem, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		price := strings.TrimSpace(item.Price)
		if price == "" {
			return nil, "", "", domain.ErrInvalidLineItem
		}
		if item.Quantity <= 0 {
			return nil, "", "", domain.ErrInvalidQuantity
		}
		if policy.MaxQuantityPerItem > 0 && item.Quantity > policy.MaxQuantityPerItem {
			return nil, "", "", domain.ErrQuantityLimit
		}
		items = append(items, stockdomain.LineItem{Price: price, Quantity: item.Quantity})
	}

	email := strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, "", "", domain.ErrInvalidEmail
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, "", "", domain.ErrInvalidUserID
	}
	return items, email, userID, nil
}

func (s *Service) mirror(ctx context.Context, session *paymentdomain.Session, items []stockdomain.LineItem, email, userID string, address *domain.Address) error {
	encodedItems, err := json.Marshal(items)
	if err != nil {
		return err
	}

	row := &domain.CheckoutSession{
		ID:                s.genID.Generate().Int64(),
		ExternalSessionID: session.ID,
		URL:               session.URL,
		LineItems:         datatypes.JSON(encodedItems),
		Email:             email,
		UserID:            userID,
		CreatedAt:         s.clock.Now(),
	}
	if address != nil {
		encodedAddress, err := json.Marshal(address)
		if err != nil {
			return err
		}
		row.Address = datatypes.JSON(encodedAddress)
	}
	return s.repo.Create(ctx, s.db, row)
}

func fromMirror(row *domain.CheckoutSession) (*domain.SessionResponse, error) {
	resp := &domain.SessionResponse{
		ID:        row.ExternalSessionID,
		URL:       row.URL,
		Email:     row.Email,
		UserID:    row.UserID,
		CreatedAt: row.CreatedAt,
		Source:    domain.SourceLocal,
	}
	if len(row.LineItems) > 0 {
		if err := json.Unmarshal(row.LineItems, &resp.LineItems); err != nil {
			return nil, err
		}
	}
	if len(row.Address) > 0 && string(row.Address) != "null" {
		var address domain.Address
		if err := json.Unmarshal(row.Address, &address); err != nil {
			return nil, err
		}
		resp.Address = &address
	}
	return resp, nil
}

func fromProcessor(session *paymentdomain.Session) *domain.SessionResponse {
	amount := session.AmountTotal
	resp := &domain.SessionResponse{
		ID:            session.ID,
		URL:           session.URL,
		Status:        session.Status,
		PaymentStatus: session.PaymentStatus,
		Email:         session.CustomerEmail,
		UserID:        session.ClientReferenceID,
		AmountTotal:   &amount,
		Currency:      session.Currency,
		CreatedAt:     session.CreatedAt,
		Source:        domain.SourceProcessor,
	}
	if resp.UserID == "" && session.Metadata != nil {
		resp.UserID = session.Metadata["user_id"]
	}
	return resp
}
