package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/payment/paymenttest"
	"github.com/smallbiznis/storefront/internal/product/domain"
	"github.com/smallbiznis/storefront/internal/product/repository"
	"github.com/smallbiznis/storefront/pkg/db/dbtest"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	svc       domain.Service
	db        *gorm.DB
	repo      domain.Repository
	processor *paymenttest.Processor
	node      *snowflake.Node
	clock     *clock.FakeClock
}

func setup(t *testing.T) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	db := dbtest.Open(t, &domain.Product{})
	repo := repository.Provide()
	processor := paymenttest.New()
	clk := clock.NewFakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	svc := New(Params{
		DB:        db,
		Log:       zaptest.NewLogger(t),
		GenID:     node,
		Repo:      repo,
		Processor: processor,
		Clock:     clk,
		Config:    config.Config{Checkout: config.CheckoutConfig{Currency: "usd"}},
	})
	return &fixture{svc: svc, db: db, repo: repo, processor: processor, node: node, clock: clk}
}

func (f *fixture) create(t *testing.T, name, price string, stock int64) *domain.Response {
	t.Helper()
	resp, err := f.svc.Create(context.Background(), domain.CreateRequest{
		Name:          name,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
	})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return resp
}

func (f *fixture) reload(t *testing.T, id string) *domain.Product {
	t.Helper()
	parsed, err := snowflake.ParseString(id)
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	item, err := f.repo.FindByID(context.Background(), f.db, parsed.Int64())
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if item == nil {
		t.Fatalf("product %s not found", id)
	}
	return item
}

func unavailable() error {
	return &paymentdomain.Error{Kind: paymentdomain.KindUnavailable, Detail: "processor down", StatusCode: 503}
}

func TestCreateProvisionsExternalTwin(t *testing.T) {
	f := setup(t)

	resp := f.create(t, "Mug", "19.99", 10)

	if resp.PriceRef == "" || resp.ExternalProductID == "" {
		t.Fatalf("expected external ids, got %+v", resp)
	}
	if resp.Status != domain.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", resp.Status)
	}
	if resp.Sync == nil || resp.Sync.State != domain.SyncStateSynced {
		t.Fatalf("expected SYNCED report, got %+v", resp.Sync)
	}

	price, ok := f.processor.Price(resp.PriceRef)
	if !ok {
		t.Fatalf("price %s missing on processor", resp.PriceRef)
	}
	if price.UnitAmount != 1999 || price.ProductID != resp.ExternalProductID {
		t.Fatalf("unexpected price %+v", price)
	}

	stored := f.reload(t, resp.ID)
	if !stored.Price.Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("expected stored price 19.99, got %s", stored.Price)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  domain.CreateRequest
		want error
	}{
		{"blank name", domain.CreateRequest{Name: " ", Price: decimal.NewFromInt(1)}, domain.ErrInvalidName},
		{"zero price", domain.CreateRequest{Name: "x"}, domain.ErrInvalidPrice},
		{"price rounds to zero", domain.CreateRequest{Name: "x", Price: decimal.RequireFromString("0.004")}, domain.ErrInvalidPrice},
		{"negative stock", domain.CreateRequest{Name: "x", Price: decimal.NewFromInt(1), StockQuantity: -1}, domain.ErrInvalidStock},
		{"bad currency", domain.CreateRequest{Name: "x", Price: decimal.NewFromInt(1), Currency: "dollars"}, domain.ErrInvalidCurrency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Create(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if got := f.processor.CallCount(paymenttest.OpCreateProduct); got != 0 {
		t.Fatalf("expected no processor calls, got %d", got)
	}
}

func TestCreatePriceFailureArchivesOrphan(t *testing.T) {
	f := setup(t)
	f.processor.FailNext(paymenttest.OpCreatePrice, unavailable())

	_, err := f.svc.Create(context.Background(), domain.CreateRequest{Name: "Mug", Price: decimal.NewFromInt(5)})
	if err == nil {
		t.Fatalf("expected price failure to propagate")
	}

	var count int64
	if err := f.db.Model(&domain.Product{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no local rows, got %d", count)
	}

	orphan, ok := f.processor.Product("prod_000001")
	if !ok {
		t.Fatalf("expected orphan external product to exist")
	}
	if orphan.Active {
		t.Fatalf("expected orphan external product to be archived")
	}
}

func TestUpdateSelfHealsMissingTwin(t *testing.T) {
	f := setup(t)
	created := f.create(t, "Mug", "10.00", 3)
	f.processor.DropProduct(created.ExternalProductID)
	before := f.processor.CallCount(paymenttest.OpCreateProduct)

	name := "Big Mug"
	resp, err := f.svc.Update(context.Background(), domain.UpdateRequest{ID: created.ID, Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := f.processor.CallCount(paymenttest.OpCreateProduct) - before; got != 1 {
		t.Fatalf("expected exactly one recreation, got %d", got)
	}
	if resp.Sync.State != domain.SyncStateExternalMissing || resp.Sync.Degraded {
		t.Fatalf("expected healed report, got %+v", resp.Sync)
	}
	if resp.ExternalProductID == created.ExternalProductID || resp.PriceRef == created.PriceRef {
		t.Fatalf("expected fresh external ids, got %+v", resp)
	}

	twin, ok := f.processor.Product(resp.ExternalProductID)
	if !ok || twin.Name != "Big Mug" {
		t.Fatalf("expected recreated twin with new name, got %+v", twin)
	}
	price, ok := f.processor.Price(resp.PriceRef)
	if !ok || price.ProductID != resp.ExternalProductID || price.UnitAmount != 1000 {
		t.Fatalf("unexpected healed price %+v", price)
	}

	stored := f.reload(t, created.ID)
	if stored.PriceRef != resp.PriceRef || stored.ExternalProductID != resp.ExternalProductID || stored.Name != "Big Mug" {
		t.Fatalf("expected healed ids persisted, got %+v", stored)
	}
}

func TestUpdatePriceChangeCreatesExactlyOnePrice(t *testing.T) {
	f := setup(t)
	created := f.create(t, "Mug", "10.00", 3)
	before := f.processor.CallCount(paymenttest.OpCreatePrice)

	price := decimal.RequireFromString("12.50")
	resp, err := f.svc.Update(context.Background(), domain.UpdateRequest{ID: created.ID, Price: &price})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	if got := f.processor.CallCount(paymenttest.OpCreatePrice) - before; got != 1 {
		t.Fatalf("expected exactly one new price, got %d", got)
	}
	if resp.Sync.State != domain.SyncStatePriceChanged {
		t.Fatalf("expected PRICE_CHANGED, got %s", resp.Sync.State)
	}
	if resp.PriceRef == created.PriceRef {
		t.Fatalf("expected price ref to be repointed")
	}
	if _, ok := f.processor.Price(created.PriceRef); !ok {
		t.Fatalf("old price must be kept for historical orders")
	}

	stored := f.reload(t, created.ID)
	if stored.PriceRef != resp.PriceRef || !stored.Price.Equal(price) {
		t.Fatalf("expected new price persisted, got %+v", stored)
	}
}

func TestUpdateSamePriceCreatesNoPrice(t *testing.T) {
	f := setup(t)
	created := f.create(t, "Mug", "10.00", 3)
	before := f.processor.CallCount(paymenttest.OpCreatePrice)

	same := decimal.RequireFromString("10")
	stock := int64(7)
	later := f.clock.Advance(time.Hour)
	resp, err := f.svc.Update(context.Background(), domain.UpdateRequest{ID: created.ID, Price: &same, StockQuantity: &stock})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !resp.UpdatedAt.Equal(later) || !resp.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("expected updatedAt %v and unchanged createdAt, got %+v", later, resp)
	}
	if got := f.processor.CallCount(paymenttest.OpCreatePrice); got != before {
		t.Fatalf("expected no new price, got %d calls", got-before)
	}
	if resp.PriceRef != created.PriceRef || resp.StockQuantity != 7 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestUpdateRejectsPriceThatRoundsToZero(t *testing.T) {
	f := setup(t)
	created := f.create(t, "Mug", "10.00", 3)
	before := f.processor.CallCount(paymenttest.OpCreatePrice)

	tiny := decimal.RequireFromString("0.004")
	_, err := f.svc.Update(context.Background(), domain.UpdateRequest{ID: created.ID, Price: &tiny})
	if !errors.Is(err, domain.ErrInvalidPrice) {
		t.Fatalf("expected invalid price, got %v", err)
	}
	if got := f.processor.CallCount(paymenttest.OpCreatePrice); got != before {
		t.Fatalf("expected no new price, got %d calls", got-before)
	}
	if stored := f.reload(t, created.ID); !stored.Price.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("expected price untouched, got %s", stored.Price)
	}
}

func TestUpdatePriceFailureLeavesRecordUntouched(t *testing.T) {
	f := setup(t)
	created := f.create(t, "Mug", "10.00", 3)
	f.processor.FailNext(paymenttest.OpCreatePrice, unavailable())

	name := "Renamed"
	price := decimal.RequireFromString("11.00")
	_, err := f.svc.Update(context.Background(), domain.UpdateRequest{ID: created.ID, Name: &name, Price: &price})
	if paymentdomain.KindOf(err) != paymentdomain.KindUnavailable {
		t.Fatalf("expected processor error, got %v", err)
	}

	stored := f.reload(t, created.ID)
	if stored.PriceRef != created.PriceRef || !stored.Price.Equal(decimal.RequireFromString("10")) || stored.Name != "Mug" {
		t.Fatalf("expected local record untouched, got %+v", stored)
	}
}

func TestUpdateDegradesOnDescriptiveFieldFailure(t *testing.T) {
	f := setup(t)
	created := f.create(t, "Mug", "10.00", 3)
	f.processor.FailNext(paymenttest.OpUpdateProduct, unavailable())

	name := "Renamed"
	resp, err := f.svc.Update(context.Background(), domain.UpdateRequest{ID: created.ID, Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !resp.Sync.Degraded || resp.Sync.Reason == "" {
		t.Fatalf("expected degraded report, got %+v", resp.Sync)
	}
	if stored := f.reload(t, created.ID); stored.Name != "Renamed" {
		t.Fatalf("expected local update applied, got %s", stored.Name)
	}
}

func TestUpdateNotFound(t *testing.T) {
	f := setup(t)
	name := "x"
	_, err := f.svc.Update(context.Background(), domain.UpdateRequest{ID: f.node.Generate().String(), Name: &name})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteHidesEvenWhenArchiveFails(t *testing.T) {
	f := setup(t)
	created := f.create(t, "Mug", "10.00", 3)
	f.processor.FailNext(paymenttest.OpSetProductActive, unavailable())

	resp, err := f.svc.Delete(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if resp.Status != domain.StatusHidden || !resp.Sync.Degraded {
		t.Fatalf("expected hidden + degraded, got %+v", resp)
	}

	stored := f.reload(t, created.ID)
	if stored.Status != domain.StatusHidden {
		t.Fatalf("expected HIDDEN persisted, got %s", stored.Status)
	}
	if stored.PriceRef != created.PriceRef {
		t.Fatalf("hidden product must keep its price ref")
	}
}

func TestDeletePersistsUpdatedAt(t *testing.T) {
	f := setup(t)
	created := f.create(t, "Mug", "10.00", 3)
	later := f.clock.Advance(time.Hour)

	resp, err := f.svc.Delete(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !resp.UpdatedAt.Equal(later) {
		t.Fatalf("expected updatedAt %v, got %v", later, resp.UpdatedAt)
	}
	if stored := f.reload(t, created.ID); !stored.UpdatedAt.Equal(later) {
		t.Fatalf("expected stored updatedAt %v, got %v", later, stored.UpdatedAt)
	}
}

func TestDeleteArchivesTwin(t *testing.T) {
	f := setup(t)
	created := f.create(t, "Mug", "10.00", 3)

	resp, err := f.svc.Delete(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if resp.Sync.State != domain.SyncStateArchived || resp.Sync.Degraded {
		t.Fatalf("unexpected report %+v", resp.Sync)
	}
	twin, _ := f.processor.Product(created.ExternalProductID)
	if twin.Active {
		t.Fatalf("expected external product archived")
	}
}

func TestDeleteNotFound(t *testing.T) {
	f := setup(t)
	if _, err := f.svc.Delete(context.Background(), f.node.Generate().String()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.Delete(context.Background(), "nope"); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	f := setup(t)
	created := f.create(t, "Mug", "10.00", 3)
	calls := f.processor.CallCount(paymenttest.OpSetProductActive)

	for _, status := range []string{"ARCHIVED", "hidden", " HIDDEN ", "Active", ""} {
		if _, err := f.svc.SetStatus(context.Background(), created.ID, status); !errors.Is(err, domain.ErrInvalidStatus) {
			t.Fatalf("status %q: expected invalid status, got %v", status, err)
		}
	}
	if stored := f.reload(t, created.ID); stored.Status != domain.StatusActive {
		t.Fatalf("expected no mutation, got %s", stored.Status)
	}
	if f.processor.CallCount(paymenttest.OpSetProductActive) != calls {
		t.Fatalf("expected no processor call")
	}
}

func TestSetStatusActivateHealsMissingTwin(t *testing.T) {
	f := setup(t)
	created := f.create(t, "Mug", "10.00", 3)
	if _, err := f.svc.SetStatus(context.Background(), created.ID, "HIDDEN"); err != nil {
		t.Fatalf("hide: %v", err)
	}
	f.processor.DropProduct(created.ExternalProductID)

	resp, err := f.svc.SetStatus(context.Background(), created.ID, "ACTIVE")
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if resp.Status != domain.StatusActive || resp.Sync.State != domain.SyncStateExternalMissing {
		t.Fatalf("unexpected response %+v", resp)
	}
	if _, ok := f.processor.Price(resp.PriceRef); !ok {
		t.Fatalf("active product must point at a live price")
	}
	twin, ok := f.processor.Product(resp.ExternalProductID)
	if !ok || !twin.Active {
		t.Fatalf("expected active recreated twin, got %+v", twin)
	}
}

func TestSetStatusActivationFailureIsRejected(t *testing.T) {
	f := setup(t)
	created := f.create(t, "Mug", "10.00", 3)
	if _, err := f.svc.SetStatus(context.Background(), created.ID, "HIDDEN"); err != nil {
		t.Fatalf("hide: %v", err)
	}
	f.processor.DropProduct(created.ExternalProductID)
	f.processor.FailNext(paymenttest.OpCreatePrice, unavailable())

	if _, err := f.svc.SetStatus(context.Background(), created.ID, "ACTIVE"); err == nil {
		t.Fatalf("expected activation to fail")
	}
	if stored := f.reload(t, created.ID); stored.Status != domain.StatusHidden {
		t.Fatalf("expected product to stay hidden, got %s", stored.Status)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	f := setup(t)
	f.create(t, "Red Mug", "10.00", 1)
	f.create(t, "Blue Mug", "10.00", 1)
	hidden := f.create(t, "Plate", "10.00", 1)
	if _, err := f.svc.Delete(context.Background(), hidden.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	first, err := f.svc.List(context.Background(), domain.ListRequest{PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Products) != 2 || !first.HasMore || first.NextPageToken == "" {
		t.Fatalf("unexpected first page %+v", first)
	}
	second, err := f.svc.List(context.Background(), domain.ListRequest{PageSize: 2, PageToken: first.NextPageToken})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(second.Products) != 1 || second.HasMore {
		t.Fatalf("unexpected second page %+v", second)
	}

	active, err := f.svc.List(context.Background(), domain.ListRequest{Status: "ACTIVE", Name: "mug"})
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active.Products) != 2 {
		t.Fatalf("expected 2 active mugs, got %d", len(active.Products))
	}

	if _, err := f.svc.List(context.Background(), domain.ListRequest{Status: "gone"}); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
}
