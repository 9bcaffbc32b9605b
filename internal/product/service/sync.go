package service

import (
	"context"
	"strconv"

	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"github.com/smallbiznis/storefront/internal/product/domain"
	"go.uber.org/zap"
)

// Delete hides the product locally and archives its external twin. The local
// flip is the point of success; archival is best effort.
func (s *Service) Delete(ctx context.Context, id string) (*domain.Response, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	report, err := s.hide(ctx, item)
	if err != nil {
		return nil, err
	}
	s.recordSync(ctx, "delete", report)

	resp := toResponse(item, &report)
	return &resp, nil
}

// SetStatus switches between ACTIVE and HIDDEN. Activation goes through the
// processor first so an ACTIVE product never points at a missing twin.
func (s *Service) SetStatus(ctx context.Context, id string, status string) (*domain.Response, error) {
	target, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var report domain.SyncReport
	if target == domain.StatusHidden {
		report, err = s.hide(ctx, item)
	} else {
		report, err = s.activate(ctx, item)
	}
	if err != nil {
		return nil, err
	}
	s.recordSync(ctx, "set_status", report)

	resp := toResponse(item, &report)
	return &resp, nil
}

func (s *Service) hide(ctx context.Context, item *domain.Product) (domain.SyncReport, error) {
	item.Status = domain.StatusHidden
	item.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateStatus(ctx, s.db, item.ID, item.Status, item.UpdatedAt); err != nil {
		return domain.SyncReport{}, err
	}

	report := domain.SyncReport{State: domain.SyncStateArchived}
	err := s.processor.SetProductActive(ctx, item.ExternalProductID, false)
	switch {
	case err == nil:
	case paymentdomain.IsResourceMissing(err):
		// Nothing left to archive.
		report.State = domain.SyncStateExternalMissing
	default:
		s.recordProcessorError(ctx, "archive_product", err)
		s.log.Warn("external product archive failed",
			zap.Int64("product_id", item.ID),
			zap.String("external_product_id", item.ExternalProductID),
			zap.Error(err),
		)
		report.Degrade("external product archive failed")
	}

	s.log.Info("product hidden",
		zap.Int64("product_id", item.ID),
		zap.String("sync_state", string(report.State)),
		zap.Bool("degraded", report.Degraded),
	)
	return report, nil
}

func (s *Service) activate(ctx context.Context, item *domain.Product) (domain.SyncReport, error) {
	next := *item
	next.Status = domain.StatusActive

	report := domain.SyncReport{State: domain.SyncStateSynced}
	err := s.processor.SetProductActive(ctx, next.ExternalProductID, true)
	switch {
	case err == nil:
	case paymentdomain.IsResourceMissing(err):
		s.log.Warn("external product missing on activation, recreating",
			zap.Int64("product_id", next.ID),
			zap.String("external_product_id", next.ExternalProductID),
		)
		if err := s.provisionTwin(ctx, &next); err != nil {
			return domain.SyncReport{}, err
		}
		report.State = domain.SyncStateExternalMissing
	default:
		s.recordProcessorError(ctx, "activate_product", err)
		s.log.Warn("external product activation failed",
			zap.Int64("product_id", next.ID),
			zap.String("external_product_id", next.ExternalProductID),
			zap.Error(err),
		)
		report.Degrade("external product activation failed")
	}

	next.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, &next); err != nil {
		return domain.SyncReport{}, err
	}
	*item = next
	return report, nil
}

// provisionTwin creates a new external product plus a price for item and
// points item at them. item is left untouched on failure.
func (s *Service) provisionTwin(ctx context.Context, item *domain.Product) error {
	active := item.Status == domain.StatusActive
	params := productParams(item, &active)
	params.Description = item.Description
	params.ImageURL = item.ImageURL
	external, err := s.processor.CreateProduct(ctx, params)
	if err != nil {
		s.recordProcessorError(ctx, "create_product", err)
		return err
	}

	price, err := s.processor.CreatePrice(ctx, paymentdomain.PriceParams{
		ProductID:  external.ID,
		UnitAmount: item.UnitAmount(),
		Currency:   item.Currency,
	})
	if err != nil {
		s.recordProcessorError(ctx, "create_price", err)
		s.archiveOrphan(ctx, external.ID)
		return err
	}

	item.ExternalProductID = external.ID
	item.PriceRef = price.ID
	return nil
}

func (s *Service) archiveOrphan(ctx context.Context, externalID string) {
	if externalID == "" {
		return
	}
	if err := s.processor.SetProductActive(ctx, externalID, false); err != nil {
		s.log.Warn("failed to archive orphaned external product",
			zap.String("external_product_id", externalID),
			zap.Error(err),
		)
	}
}

// productParams pushes every mutable field; empty strings clear them remotely.
func productParams(item *domain.Product, active *bool) paymentdomain.ProductParams {
	description := ptrToString(item.Description)
	image := ptrToString(item.ImageURL)
	return paymentdomain.ProductParams{
		Name:        item.Name,
		Description: &description,
		ImageURL:    &image,
		Active:      active,
		Metadata: map[string]string{
			"product_id": strconv.FormatInt(item.ID, 10),
		},
	}
}
