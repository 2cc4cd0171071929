// Package repository provides data access for dispatch entities.
package repository

import (
	"context"

	"reciapp/internal/models"

	"gorm.io/gorm"
)

// RequestRepository defines operations for the durable request store.
// UpdateState is the conditional form the lifecycle engine relies on for
// atomic claims: the write succeeds only if the stored state still matches
// the expected one.
type RequestRepository interface {
	Create(ctx context.Context, req *models.PickupRequest) error
	GetByID(ctx context.Context, id string) (*models.PickupRequest, error)
	ListPending(ctx context.Context, material *models.MaterialType) ([]models.PickupRequest, error)
	ActiveByRequester(ctx context.Context, requesterID uint) (*models.PickupRequest, error)
	ActiveByCollector(ctx context.Context, collectorID uint) (*models.PickupRequest, error)
	UpdateState(ctx context.Context, id string, expected models.RequestState, fields map[string]interface{}) (bool, error)
	CompletedKgByCollector(ctx context.Context, collectorID uint) (float64, error)
}

type requestRepository struct {
	db *gorm.DB
}

// NewRequestRepository creates and returns a new RequestRepository instance.
func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *models.PickupRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*models.PickupRequest, error) {
	var req models.PickupRequest
	err := r.db.WithContext(ctx).
		Preload("Materials", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) ListPending(ctx context.Context, material *models.MaterialType) ([]models.PickupRequest, error) {
	var reqs []models.PickupRequest
	q := r.db.WithContext(ctx).
		Preload("Materials", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Where("state = ?", models.RequestPending)

	if material != nil {
		q = q.Where(
			"id IN (?)",
			r.db.Model(&models.RequestMaterial{}).
				Select("request_id").
				Where("material_type = ?", *material),
		)
	}

	err := q.Order("created_at asc").Find(&reqs).Error
	return reqs, err
}

func (r *requestRepository) ActiveByRequester(ctx context.Context, requesterID uint) (*models.PickupRequest, error) {
	var req models.PickupRequest
	err := r.db.WithContext(ctx).
		Preload("Materials", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Where("requester_id = ? AND state IN ?", requesterID,
			[]models.RequestState{models.RequestPending, models.RequestClaimed}).
		Order("created_at desc").
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) ActiveByCollector(ctx context.Context, collectorID uint) (*models.PickupRequest, error) {
	var req models.PickupRequest
	err := r.db.WithContext(ctx).
		Preload("Materials", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Where("collector_id = ? AND state = ?", collectorID, models.RequestClaimed).
		Order("claimed_at desc").
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateState performs the compare-and-swap transition. It returns false
// (and no error) when the stored state no longer matches expected: the
// caller lost the race or the request was already terminal.
func (r *requestRepository) UpdateState(ctx context.Context, id string, expected models.RequestState, fields map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PickupRequest{}).
		Where("id = ? AND state = ?", id, expected).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *requestRepository) CompletedKgByCollector(ctx context.Context, collectorID uint) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).
		Model(&models.PickupRequest{}).
		Where("collector_id = ? AND state = ?", collectorID, models.RequestCompleted).
		Select("COALESCE(SUM(completed_kg), 0)").
		Scan(&total).Error
	return total, err
}
