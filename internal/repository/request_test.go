package repository

import (
	"context"
	"testing"
	"time"

	"reciapp/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.PickupRequest{},
		&models.RequestMaterial{},
	))
	return db
}

func newPendingRequest(requesterID uint) *models.PickupRequest {
	return &models.PickupRequest{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		Latitude:    -12.0464,
		Longitude:   -77.0428,
		State:       models.RequestPending,
		Materials: []models.RequestMaterial{
			{Position: 0, MaterialType: models.MaterialPlastic, QuantityKg: 2},
		},
	}
}

func TestRequestRepositoryCreateAndGet(t *testing.T) {
	repo := NewRequestRepository(newTestDB(t))
	ctx := context.Background()

	req := newPendingRequest(1)
	req.Materials = append(req.Materials,
		models.RequestMaterial{Position: 1, MaterialType: models.MaterialGlass, QuantityKg: 0.5})
	require.NoError(t, repo.Create(ctx, req))

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, got.State)
	require.Len(t, got.Materials, 2)
	// Ordered as submitted.
	assert.Equal(t, models.MaterialPlastic, got.Materials[0].MaterialType)
	assert.Equal(t, models.MaterialGlass, got.Materials[1].MaterialType)
}

func TestRequestRepositoryGetByIDNotFound(t *testing.T) {
	repo := NewRequestRepository(newTestDB(t))

	_, err := repo.GetByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRequestRepositoryListPendingFiltersByState(t *testing.T) {
	repo := NewRequestRepository(newTestDB(t))
	ctx := context.Background()

	pending := newPendingRequest(1)
	require.NoError(t, repo.Create(ctx, pending))

	claimed := newPendingRequest(2)
	claimed.State = models.RequestClaimed
	require.NoError(t, repo.Create(ctx, claimed))

	list, err := repo.ListPending(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pending.ID, list[0].ID)
}

func TestRequestRepositoryListPendingMaterialFilter(t *testing.T) {
	repo := NewRequestRepository(newTestDB(t))
	ctx := context.Background()

	plastic := newPendingRequest(1)
	require.NoError(t, repo.Create(ctx, plastic))

	glass := newPendingRequest(2)
	glass.Materials = []models.RequestMaterial{
		{Position: 0, MaterialType: models.MaterialGlass, QuantityKg: 1},
	}
	require.NoError(t, repo.Create(ctx, glass))

	material := models.MaterialGlass
	list, err := repo.ListPending(ctx, &material)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, glass.ID, list[0].ID)
}

func TestRequestRepositoryUpdateStateWinsOnce(t *testing.T) {
	repo := NewRequestRepository(newTestDB(t))
	ctx := context.Background()

	req := newPendingRequest(1)
	require.NoError(t, repo.Create(ctx, req))

	now := time.Now()
	collectorA, collectorB := uint(10), uint(11)

	okA, err := repo.UpdateState(ctx, req.ID, models.RequestPending, map[string]interface{}{
		"state":        models.RequestClaimed,
		"collector_id": collectorA,
		"claimed_at":   now,
	})
	require.NoError(t, err)
	assert.True(t, okA)

	// Second conditional update against the same expected state must lose.
	okB, err := repo.UpdateState(ctx, req.ID, models.RequestPending, map[string]interface{}{
		"state":        models.RequestClaimed,
		"collector_id": collectorB,
		"claimed_at":   now,
	})
	require.NoError(t, err)
	assert.False(t, okB)

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestClaimed, got.State)
	require.NotNil(t, got.CollectorID)
	assert.Equal(t, collectorA, *got.CollectorID)
}

func TestRequestRepositoryUpdateStateUnknownID(t *testing.T) {
	repo := NewRequestRepository(newTestDB(t))

	ok, err := repo.UpdateState(context.Background(), uuid.NewString(), models.RequestPending,
		map[string]interface{}{"state": models.RequestCancelled})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRequestRepositoryActiveByRequester(t *testing.T) {
	repo := NewRequestRepository(newTestDB(t))
	ctx := context.Background()

	done := newPendingRequest(5)
	done.State = models.RequestCompleted
	require.NoError(t, repo.Create(ctx, done))

	active := newPendingRequest(5)
	require.NoError(t, repo.Create(ctx, active))

	got, err := repo.ActiveByRequester(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, active.ID, got.ID)

	_, err = repo.ActiveByRequester(ctx, 99)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRequestRepositoryCompletedKgByCollector(t *testing.T) {
	repo := NewRequestRepository(newTestDB(t))
	ctx := context.Background()
	collector := uint(7)

	for _, kg := range []float64{2.5, 1.5} {
		kg := kg
		req := newPendingRequest(1)
		req.State = models.RequestCompleted
		req.CollectorID = &collector
		req.CompletedKg = &kg
		require.NoError(t, repo.Create(ctx, req))
	}

	// A claimed-but-unfinished request must not count.
	inFlight := newPendingRequest(2)
	inFlight.State = models.RequestClaimed
	inFlight.CollectorID = &collector
	require.NoError(t, repo.Create(ctx, inFlight))

	total, err := repo.CompletedKgByCollector(ctx, collector)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, total, 1e-9)

	none, err := repo.CompletedKgByCollector(ctx, 99)
	require.NoError(t, err)
	assert.InDelta(t, 0, none, 1e-9)
}
