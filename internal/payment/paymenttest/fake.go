// Package paymenttest provides an in-memory payment processor for tests.
package paymenttest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
)

const (
	OpCreateProduct    = "create_product"
	OpUpdateProduct    = "update_product"
	OpSetProductActive = "set_product_active"
	OpCreatePrice      = "create_price"
	OpCreateSession    = "create_checkout_session"
	OpRetrieveSession  = "retrieve_checkout_session"
	OpListSessionItems = "list_checkout_session_line_items"
)

type fakeSession struct {
	session paymentdomain.Session
	items   []paymentdomain.SessionLineItem
}

// Processor is a goroutine-safe fake of paymentdomain.Processor.
type Processor struct {
	mu       sync.Mutex
	seq      int
	products map[string]*paymentdomain.Product
	prices   map[string]*paymentdomain.Price
	sessions map[string]*fakeSession
	failures map[string][]error
	calls    map[string]int

	LastSessionParams *paymentdomain.SessionParams
}

func New() *Processor {
	return &Processor{
		products: map[string]*paymentdomain.Product{},
		prices:   map[string]*paymentdomain.Price{},
		sessions: map[string]*fakeSession{},
		failures: map[string][]error{},
		calls:    map[string]int{},
	}
}

// FailNext queues err to be returned by the next call of op.
func (p *Processor) FailNext(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] = append(p.failures[op], err)
}

// DropProduct removes a product as if it was deleted on the processor side.
func (p *Processor) DropProduct(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.products, id)
}

func (p *Processor) CallCount(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *Processor) Product(id string) (paymentdomain.Product, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prod, ok := p.products[id]
	if !ok {
		return paymentdomain.Product{}, false
	}
	return *prod, true
}

func (p *Processor) Price(id string) (paymentdomain.Price, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.prices[id]
	if !ok {
		return paymentdomain.Price{}, false
	}
	return *price, true
}

// PricesFor returns every price created for a product, oldest first.
func (p *Processor) PricesFor(productID string) []paymentdomain.Price {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []paymentdomain.Price{}
	for _, price := range p.prices {
		if price.ProductID == productID {
			out = append(out, *price)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SeedSession registers a session that exists only on the processor side.
func (p *Processor) SeedSession(session paymentdomain.Session, items []paymentdomain.SessionLineItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[session.ID] = &fakeSession{session: session, items: append([]paymentdomain.SessionLineItem(nil), items...)}
}

func (p *Processor) CreateProduct(ctx context.Context, params paymentdomain.ProductParams) (*paymentdomain.Product, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(OpCreateProduct); err != nil {
		return nil, err
	}
	prod := &paymentdomain.Product{
		ID:     p.nextID("prod"),
		Name:   params.Name,
		Active: true,
	}
	applyProductParams(prod, params)
	p.products[prod.ID] = prod
	out := *prod
	return &out, nil
}

func (p *Processor) UpdateProduct(ctx context.Context, id string, params paymentdomain.ProductParams) (*paymentdomain.Product, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(OpUpdateProduct); err != nil {
		return nil, err
	}
	prod, ok := p.products[id]
	if !ok {
		return nil, missing("product", id)
	}
	if name := strings.TrimSpace(params.Name); name != "" {
		prod.Name = name
	}
	applyProductParams(prod, params)
	out := *prod
	return &out, nil
}

func (p *Processor) SetProductActive(ctx context.Context, id string, active bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(OpSetProductActive); err != nil {
		return err
	}
	prod, ok := p.products[id]
	if !ok {
		return missing("product", id)
	}
	prod.Active = active
	return nil
}

func (p *Processor) CreatePrice(ctx context.Context, params paymentdomain.PriceParams) (*paymentdomain.Price, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(OpCreatePrice); err != nil {
		return nil, err
	}
	if _, ok := p.products[params.ProductID]; !ok {
		return nil, missing("product", params.ProductID)
	}
	price := &paymentdomain.Price{
		ID:         p.nextID("price"),
		ProductID:  params.ProductID,
		UnitAmount: params.UnitAmount,
		Currency:   strings.ToLower(params.Currency),
		Active:     true,
	}
	p.prices[price.ID] = price
	out := *price
	return &out, nil
}

func (p *Processor) CreateCheckoutSession(ctx context.Context, params paymentdomain.SessionParams) (*paymentdomain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(OpCreateSession); err != nil {
		return nil, err
	}
	captured := params
	p.LastSessionParams = &captured

	var total int64
	for _, item := range params.LineItems {
		price, ok := p.prices[item.Price]
		if !ok {
			return nil, missing("price", item.Price)
		}
		total += price.UnitAmount * item.Quantity
	}

	id := p.nextID("cs")
	session := paymentdomain.Session{
		ID:                id,
		URL:               "https://checkout.test/" + id,
		Status:            "open",
		PaymentStatus:     "unpaid",
		CustomerEmail:     params.CustomerEmail,
		ClientReferenceID: params.ClientReferenceID,
		AmountTotal:       total,
		Metadata:          params.Metadata,
		CreatedAt:         time.Now().UTC(),
	}
	p.sessions[id] = &fakeSession{session: session, items: append([]paymentdomain.SessionLineItem(nil), params.LineItems...)}
	out := session
	return &out, nil
}

func (p *Processor) RetrieveCheckoutSession(ctx context.Context, id string) (*paymentdomain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(OpRetrieveSession); err != nil {
		return nil, err
	}
	s, ok := p.sessions[id]
	if !ok {
		return nil, missing("checkout session", id)
	}
	out := s.session
	return &out, nil
}

func (p *Processor) ListCheckoutSessionLineItems(ctx context.Context, id string) ([]paymentdomain.SessionLineItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter(OpListSessionItems); err != nil {
		return nil, err
	}
	s, ok := p.sessions[id]
	if !ok {
		return nil, missing("checkout session", id)
	}
	return append([]paymentdomain.SessionLineItem(nil), s.items...), nil
}

// enter records a call and pops a queued failure. Callers hold p.mu.
func (p *Processor) enter(op string) error {
	p.calls[op]++
	queue := p.failures[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	p.failures[op] = queue[1:]
	return err
}

func (p *Processor) nextID(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s_%06d", prefix, p.seq)
}

func applyProductParams(prod *paymentdomain.Product, params paymentdomain.ProductParams) {
	if params.Description != nil {
		prod.Description = *params.Description
	}
	if params.ImageURL != nil {
		if *params.ImageURL == "" {
			prod.Images = nil
		} else {
			prod.Images = []string{*params.ImageURL}
		}
	}
	if params.Active != nil {
		prod.Active = *params.Active
	}
}

func missing(resource, id string) error {
	return &paymentdomain.Error{
		Kind:       paymentdomain.KindResourceMissing,
		Detail:     fmt.Sprintf("No such %s: '%s'", resource, id),
		StatusCode: 404,
	}
}

var _ paymentdomain.Processor = (*Processor)(nil)
