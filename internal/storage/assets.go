package storage

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/coinpilot/coinpilot/internal/domain"
)

// ErrAssetNotFound is returned for lookups of unknown asset ids.
var ErrAssetNotFound = errors.New("asset not found")

// AssetRepository owns the asset registry rows.
type AssetRepository struct {
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// Create registers a new active asset under a unique name.
func (r *AssetRepository) Create(ctx context.Context, name string) (*domain.Asset, error) {
	asset := &domain.Asset{Name: name, Active: true}
	if err := r.db.WithContext(ctx).Create(asset).Error; err != nil {
		return nil, errors.Wrapf(err, "create asset %s", name)
	}
	return asset, nil
}

// CreateOrRestore registers an asset under a unique name. If a retired asset
// with the same name already exists it is reactivated instead, keeping its id
// and trade history.
func (r *AssetRepository) CreateOrRestore(ctx context.Context, name string) (*domain.Asset, error) {
	var existing domain.Asset
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&existing).Error
	if err == nil {
		if !existing.Active {
			if err := r.Restore(ctx, existing.ID); err != nil {
				return nil, err
			}
			existing.Active = true
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(err, "look up asset %s", name)
	}
	return r.Create(ctx, name)
}

// GetByID returns one asset regardless of its lifecycle state.
func (r *AssetRepository) GetByID(ctx context.Context, id uint64) (*domain.Asset, error) {
	var asset domain.Asset
	err := r.db.WithContext(ctx).First(&asset, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAssetNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get asset %d", id)
	}
	return &asset, nil
}

// ListActive returns all non-retired assets in insertion order. This is the
// order the orchestrator evaluates them in.
func (r *AssetRepository) ListActive(ctx context.Context) ([]domain.Asset, error) {
	var assets []domain.Asset
	if err := r.db.WithContext(ctx).Where("active = ?", true).Order("id ASC").Find(&assets).Error; err != nil {
		return nil, errors.Wrap(err, "list active assets")
	}
	return assets, nil
}

// ListAll returns every registered asset, retired ones included.
func (r *AssetRepository) ListAll(ctx context.Context) ([]domain.Asset, error) {
	var assets []domain.Asset
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&assets).Error; err != nil {
		return nil, errors.Wrap(err, "list assets")
	}
	return assets, nil
}

// Retire soft-deletes an asset: it is excluded from future runs while its
// trade history stays intact.
func (r *AssetRepository) Retire(ctx context.Context, id uint64) error {
	return r.setActive(ctx, id, false)
}

// Restore reactivates a retired asset.
func (r *AssetRepository) Restore(ctx context.Context, id uint64) error {
	return r.setActive(ctx, id, true)
}

func (r *AssetRepository) setActive(ctx context.Context, id uint64, active bool) error {
	res := r.db.WithContext(ctx).Model(&domain.Asset{}).Where("id = ?", id).Update("active", active)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update asset %d", id)
	}
	if res.RowsAffected == 0 {
		return ErrAssetNotFound
	}
	return nil
}
