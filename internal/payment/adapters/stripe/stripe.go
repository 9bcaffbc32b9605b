package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/smallbiznis/storefront/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	defaultBaseURL   = "https://api.stripe.com"
	maxResponseBytes = 1 << 20
	lineItemsPage    = 100
)

type Config struct {
	SecretKey  string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int

	// RetryInitialInterval overrides the first backoff step. Tests shrink it.
	RetryInitialInterval time.Duration
}

// Client talks to the Stripe REST API and normalizes its failures into
// paymentdomain.Error values.
type Client struct {
	http       *http.Client
	baseURL    string
	secretKey  string
	maxRetries int
	initial    time.Duration
	log        *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	initial := cfg.RetryInitialInterval
	if initial <= 0 {
		initial = 250 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		http:       &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		secretKey:  strings.TrimSpace(cfg.SecretKey),
		maxRetries: max(cfg.MaxRetries, 0),
		initial:    initial,
		log:        log.Named("payment.stripe"),
	}
}

type stripeProduct struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Images      []string `json:"images"`
	Active      bool     `json:"active"`
}

type stripePrice struct {
	ID         string `json:"id"`
	Product    string `json:"product"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
	Active     bool   `json:"active"`
}

type stripeSession struct {
	ID                string            `json:"id"`
	URL               *string           `json:"url"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	CustomerEmail     *string           `json:"customer_email"`
	ClientReferenceID *string           `json:"client_reference_id"`
	AmountTotal       int64             `json:"amount_total"`
	Currency          string            `json:"currency"`
	Metadata          map[string]string `json:"metadata"`
	Created           int64             `json:"created"`
}

type stripeLineItem struct {
	ID       string `json:"id"`
	Quantity int64  `json:"quantity"`
	Price    *struct {
		ID string `json:"id"`
	} `json:"price"`
}

type stripeList[T any] struct {
	Data    []T  `json:"data"`
	HasMore bool `json:"has_more"`
}

type stripeErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Param   string `json:"param"`
	} `json:"error"`
}

func (c *Client) CreateProduct(ctx context.Context, params paymentdomain.ProductParams) (*paymentdomain.Product, error) {
	var out stripeProduct
	if err := c.call(ctx, http.MethodPost, "/v1/products", productForm(params), &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) UpdateProduct(ctx context.Context, id string, params paymentdomain.ProductParams) (*paymentdomain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &paymentdomain.Error{Kind: paymentdomain.KindResourceMissing, Detail: "product id is empty"}
	}
	var out stripeProduct
	if err := c.call(ctx, http.MethodPost, "/v1/products/"+url.PathEscape(id), productForm(params), &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) SetProductActive(ctx context.Context, id string, active bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &paymentdomain.Error{Kind: paymentdomain.KindResourceMissing, Detail: "product id is empty"}
	}
	form := url.Values{}
	form.Set("active", strconv.FormatBool(active))
	var out stripeProduct
	return c.call(ctx, http.MethodPost, "/v1/products/"+url.PathEscape(id), form, &out)
}

func (c *Client) CreatePrice(ctx context.Context, params paymentdomain.PriceParams) (*paymentdomain.Price, error) {
	form := url.Values{}
	form.Set("product", params.ProductID)
	form.Set("unit_amount", strconv.FormatInt(params.UnitAmount, 10))
	form.Set("currency", strings.ToLower(strings.TrimSpace(params.Currency)))

	var out stripePrice
	if err := c.call(ctx, http.MethodPost, "/v1/prices", form, &out); err != nil {
		return nil, err
	}
	return &paymentdomain.Price{
		ID:         out.ID,
		ProductID:  out.Product,
		UnitAmount: out.UnitAmount,
		Currency:   out.Currency,
		Active:     out.Active,
	}, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, params paymentdomain.SessionParams) (*paymentdomain.Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	if email := strings.TrimSpace(params.CustomerEmail); email != "" {
		form.Set("customer_email", email)
	}
	if ref := strings.TrimSpace(params.ClientReferenceID); ref != "" {
		form.Set("client_reference_id", ref)
	}
	for i, item := range params.LineItems {
		form.Set(fmt.Sprintf("line_items[%d][price]", i), item.Price)
		form.Set(fmt.Sprintf("line_items[%d][quantity]", i), strconv.FormatInt(item.Quantity, 10))
	}
	setMetadata(form, params.Metadata)

	var out stripeSession
	if err := c.call(ctx, http.MethodPost, "/v1/checkout/sessions", form, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) RetrieveCheckoutSession(ctx context.Context, id string) (*paymentdomain.Session, error) {
	var out stripeSession
	if err := c.call(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(strings.TrimSpace(id)), nil, &out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) ListCheckoutSessionLineItems(ctx context.Context, id string) ([]paymentdomain.SessionLineItem, error) {
	path := "/v1/checkout/sessions/" + url.PathEscape(strings.TrimSpace(id)) + "/line_items"

	items := []paymentdomain.SessionLineItem{}
	startingAfter := ""
	for {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(lineItemsPage))
		if startingAfter != "" {
			query.Set("starting_after", startingAfter)
		}

		var page stripeList[stripeLineItem]
		if err := c.call(ctx, http.MethodGet, path, query, &page); err != nil {
			return nil, err
		}
		for _, li := range page.Data {
			priceID := ""
			if li.Price != nil {
				priceID = li.Price.ID
			}
			items = append(items, paymentdomain.SessionLineItem{Price: priceID, Quantity: li.Quantity})
		}
		if !page.HasMore || len(page.Data) == 0 {
			return items, nil
		}
		startingAfter = page.Data[len(page.Data)-1].ID
	}
}

// call executes a request, retrying only transient failures with jittered
// exponential backoff. POSTs reuse one idempotency key across attempts.
func (c *Client) call(ctx context.Context, method, path string, form url.Values, out any) (err error) {
	operation := operationName(method, path)
	ctx, span := otel.Tracer("storefront/payment").Start(ctx, "stripe "+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer func() {
		if err != nil {
			span.SetAttributes(tracing.SafeAttributes(attribute.String("processor.error_kind", string(paymentdomain.KindOf(err))))...)
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "processor error")
		}
		span.End()
	}()
	span.SetAttributes(tracing.SafeAttributes(attribute.String("processor.operation", operation))...)

	if c.secretKey == "" {
		return &paymentdomain.Error{Kind: paymentdomain.KindAuthentication, Detail: "secret key not configured", Err: paymentdomain.ErrNotConfigured}
	}

	idempotencyKey := ""
	if method == http.MethodPost {
		idempotencyKey = uuid.NewString()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initial
	policy.MaxInterval = 5 * time.Second

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := c.do(ctx, method, path, form, idempotencyKey, out)
		if err == nil {
			return struct{}{}, nil
		}
		var pErr *paymentdomain.Error
		if errors.As(err, &pErr) && pErr.Transient() {
			c.log.Debug("retrying stripe request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.String("kind", string(pErr.Kind)),
			)
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithMaxElapsedTime(30*time.Second),
	)
	return err
}

// operationName replaces object ids in path with a placeholder so span names
// stay low-cardinality.
func operationName(method, path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := 1; i < len(segments); i++ {
		switch segments[i-1] {
		case "products", "prices", "sessions":
			segments[i] = "{id}"
		}
	}
	return method + " /" + strings.Join(segments, "/")
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out any) error {
	endpoint := c.baseURL + path
	var body io.Reader
	if method == http.MethodGet {
		if len(form) > 0 {
			endpoint += "?" + form.Encode()
		}
	} else {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &paymentdomain.Error{Kind: paymentdomain.KindInvalidRequest, Detail: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &paymentdomain.Error{Kind: paymentdomain.KindUnavailable, Detail: "request failed", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &paymentdomain.Error{Kind: paymentdomain.KindUnavailable, Detail: "read response", StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return normalizeError(resp.StatusCode, payload)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &paymentdomain.Error{Kind: paymentdomain.KindUnknown, Detail: "decode response", StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

// normalizeError maps a Stripe error response to a tagged processor error.
func normalizeError(status int, payload []byte) error {
	var envelope stripeErrorEnvelope
	_ = json.Unmarshal(payload, &envelope)

	detail := strings.TrimSpace(envelope.Error.Message)
	if detail == "" {
		detail = http.StatusText(status)
	}

	kind := paymentdomain.KindUnknown
	switch {
	case envelope.Error.Code == "resource_missing", status == http.StatusNotFound:
		kind = paymentdomain.KindResourceMissing
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = paymentdomain.KindAuthentication
	case status == http.StatusTooManyRequests:
		kind = paymentdomain.KindRateLimited
	case status >= http.StatusInternalServerError:
		kind = paymentdomain.KindUnavailable
	case status == http.StatusBadRequest, status == http.StatusPaymentRequired, status == http.StatusConflict:
		kind = paymentdomain.KindInvalidRequest
	}

	return &paymentdomain.Error{Kind: kind, Detail: detail, StatusCode: status}
}

func productForm(params paymentdomain.ProductParams) url.Values {
	form := url.Values{}
	if name := strings.TrimSpace(params.Name); name != "" {
		form.Set("name", name)
	}
	if params.Description != nil {
		form.Set("description", strings.TrimSpace(*params.Description))
	}
	if params.ImageURL != nil {
		if image := strings.TrimSpace(*params.ImageURL); image != "" {
			form.Set("images[0]", image)
		} else {
			// An empty value clears the list on Stripe's side.
			form.Set("images", "")
		}
	}
	if params.Active != nil {
		form.Set("active", strconv.FormatBool(*params.Active))
	}
	setMetadata(form, params.Metadata)
	return form
}

func setMetadata(form url.Values, metadata map[string]string) {
	for key, value := range metadata {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}
}

func (p stripeProduct) toDomain() *paymentdomain.Product {
	description := ""
	if p.Description != nil {
		description = *p.Description
	}
	return &paymentdomain.Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: description,
		Images:      p.Images,
		Active:      p.Active,
	}
}

func (s stripeSession) toDomain() *paymentdomain.Session {
	out := &paymentdomain.Session{
		ID:            s.ID,
		Status:        s.Status,
		PaymentStatus: s.PaymentStatus,
		AmountTotal:   s.AmountTotal,
		Currency:      strings.ToUpper(strings.TrimSpace(s.Currency)),
		Metadata:      s.Metadata,
	}
	if s.URL != nil {
		out.URL = *s.URL
	}
	if s.CustomerEmail != nil {
		out.CustomerEmail = *s.CustomerEmail
	}
	if s.ClientReferenceID != nil {
		out.ClientReferenceID = *s.ClientReferenceID
	}
	if s.Created > 0 {
		out.CreatedAt = time.Unix(s.Created, 0).UTC()
	}
	return out
}

var _ paymentdomain.Processor = (*Client)(nil)
