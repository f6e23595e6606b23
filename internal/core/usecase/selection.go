package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/core/ports"
	"github.com/kirillkom/virtual-fitting/internal/core/session"
)

// SelectionUseCase covers the steps before submission: picking a garment
// and supplying a still photo instead of a recording.
type SelectionUseCase struct {
	catalog    ports.GarmentCatalog
	normalizer ports.ImageNormalizer
	store      *session.Store
	logger     *slog.Logger
}

func NewSelectionUseCase(
	catalog ports.GarmentCatalog,
	normalizer ports.ImageNormalizer,
	store *session.Store,
	logger *slog.Logger,
) *SelectionUseCase {
	return &SelectionUseCase{
		catalog:    catalog,
		normalizer: normalizer,
		store:      store,
		logger:     loggerOrDefault(logger),
	}
}

func (uc *SelectionUseCase) SelectGarment(id string) (domain.Garment, error) {
	id = strings.TrimSpace(id)
	garment, ok := uc.catalog.Lookup(id)
	if !ok {
		return domain.Garment{}, domain.WrapError(domain.ErrInvalidInput, "select garment", fmt.Errorf("%w: %q", domain.ErrUnknownGarment, id))
	}
	if err := uc.store.Apply(session.SelectGarment(garment)); err != nil {
		return domain.Garment{}, err
	}
	uc.logger.Info("garment_selected", "garment_id", garment.ID)
	return garment, nil
}

// LoadImage normalizes src and stores it in the session in place of any
// recorded clip. A reset while normalizing discards the result.
func (uc *SelectionUseCase) LoadImage(ctx context.Context, src domain.SourceImage) (domain.UploadedImage, error) {
	lease := uc.store.Lease()
	img, err := uc.normalizer.Normalize(ctx, src)
	if err != nil {
		return domain.UploadedImage{}, err
	}
	if err := lease.Apply(session.SetImage(img)); err != nil {
		return domain.UploadedImage{}, err
	}
	uc.logger.Info("image_loaded",
		"name", img.OriginalName,
		"mime_type", img.MIMEType,
		"width", img.Width,
		"height", img.Height,
		"bytes", len(img.Data),
	)
	return img, nil
}
