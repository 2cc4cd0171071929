// Package service provides application business logic for the request lifecycle.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"reciapp/internal/models"
	"reciapp/internal/notifications"
	"reciapp/internal/observability"
	"reciapp/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LifecycleService owns the request state machine. Claim arbitration is
// serialized per request id: a per-id mutex keeps local callers from
// racing, and the repository's conditional update is the authoritative
// check-and-set, so competing instances of the server stay correct too.
type LifecycleService struct {
	requests repository.RequestRepository
	dispatch *notifications.Dispatcher

	defaultLat float64
	defaultLng float64

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLifecycleService returns a new LifecycleService. The default
// coordinate is used when a submission carries no pickup location.
func NewLifecycleService(
	requests repository.RequestRepository,
	dispatch *notifications.Dispatcher,
	defaultLat, defaultLng float64,
) *LifecycleService {
	return &LifecycleService{
		requests:   requests,
		dispatch:   dispatch,
		defaultLat: defaultLat,
		defaultLng: defaultLng,
		locks:      make(map[string]*sync.Mutex),
	}
}

// MaterialInput is one material line of a submission.
type MaterialInput struct {
	MaterialType models.MaterialType
	QuantityKg   float64
}

// CreateRequestInput is the input for submitting a pickup request. Nil
// coordinates fall back to the configured default.
type CreateRequestInput struct {
	RequesterID uint
	Materials   []MaterialInput
	Latitude    *float64
	Longitude   *float64
}

// CollectorSnapshot is the pull-based resync payload for a collector
// session: the current pending list plus the collector's own claimed
// request, if any.
type CollectorSnapshot struct {
	Pending []models.PickupRequest `json:"pending"`
	Active  *models.PickupRequest  `json:"active,omitempty"`
}

// RequesterSnapshot is the resync payload for a requester session.
type RequesterSnapshot struct {
	Active *models.PickupRequest `json:"active,omitempty"`
}

func (s *LifecycleService) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// reapLock drops the per-id mutex once a request is terminal. A caller
// still holding the old mutex is harmless: the conditional update
// rejects any write against a terminal state.
func (s *LifecycleService) reapLock(id string) {
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
}

func (s *LifecycleService) get(ctx context.Context, id string) (*models.PickupRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Request", id)
		}
		return nil, err
	}
	return req, nil
}

// GetRequest returns a request by id.
func (s *LifecycleService) GetRequest(ctx context.Context, id string) (*models.PickupRequest, error) {
	return s.get(ctx, id)
}

func validateMaterials(materials []MaterialInput) error {
	if len(materials) == 0 {
		return models.NewValidationError("At least one material is required")
	}
	for _, m := range materials {
		if !m.MaterialType.Valid() {
			return models.NewValidationError("Unknown material type: " + string(m.MaterialType))
		}
		if m.QuantityKg <= 0 {
			return models.NewValidationError("Material quantity must be positive")
		}
	}
	return nil
}

// Create validates a submission, persists it as pending and broadcasts
// it to every connected collector. A requester with an active request
// must resolve it before submitting another.
func (s *LifecycleService) Create(ctx context.Context, in CreateRequestInput) (*models.PickupRequest, error) {
	if err := validateMaterials(in.Materials); err != nil {
		return nil, err
	}

	lat, lng := s.defaultLat, s.defaultLng
	if in.Latitude != nil && in.Longitude != nil {
		lat, lng = *in.Latitude, *in.Longitude
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, models.NewValidationError("Coordinates out of range")
	}

	_, err := s.requests.ActiveByRequester(ctx, in.RequesterID)
	switch {
	case err == nil:
		return nil, models.NewConflictError("You already have an active request")
	case errors.Is(err, gorm.ErrRecordNotFound):
		// No active request, proceed.
	default:
		return nil, err
	}

	req := &models.PickupRequest{
		ID:          uuid.NewString(),
		RequesterID: in.RequesterID,
		Latitude:    lat,
		Longitude:   lng,
		State:       models.RequestPending,
	}
	for i, m := range in.Materials {
		req.Materials = append(req.Materials, models.RequestMaterial{
			Position:     i,
			MaterialType: m.MaterialType,
			QuantityKg:   m.QuantityKg,
		})
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.dispatch.ToCollectors(ctx, notifications.NewCreatedEvent(req))
	return req, nil
}

// Claim attempts to make collectorID the sole handler of a pending
// request. Exactly one concurrent caller wins; the rest get a conflict.
// The winner's claim is pushed to the requester, and a withdrawal goes
// to every other collector session.
func (s *LifecycleService) Claim(ctx context.Context, requestID string, collectorID uint) (*models.PickupRequest, error) {
	lock := s.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	req, err := s.get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.State != models.RequestPending {
		observability.ClaimAttemptsTotal.WithLabelValues("conflict").Inc()
		return nil, models.NewConflictError("Request is no longer available")
	}

	now := time.Now()
	ok, err := s.requests.UpdateState(ctx, requestID, models.RequestPending, map[string]interface{}{
		"state":        models.RequestClaimed,
		"collector_id": collectorID,
		"claimed_at":   now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		observability.ClaimAttemptsTotal.WithLabelValues("conflict").Inc()
		return nil, models.NewConflictError("Request is no longer available")
	}
	observability.ClaimAttemptsTotal.WithLabelValues("won").Inc()

	req.State = models.RequestClaimed
	req.CollectorID = &collectorID
	req.ClaimedAt = &now

	s.dispatch.ToUser(ctx, req.RequesterID, notifications.NewClaimedEvent(requestID, collectorID))
	s.dispatch.ToCollectorsExcept(ctx, collectorID, notifications.NewWithdrawnEvent(requestID))
	return req, nil
}

// Cancel transitions a request to cancelled. Only the requester may
// cancel; an already claimed request additionally notifies the claimant.
func (s *LifecycleService) Cancel(ctx context.Context, requestID string, actorID uint) (*models.PickupRequest, error) {
	lock := s.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	req, err := s.get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.RequesterID != actorID {
		return nil, models.NewConflictError("Only the requester can cancel")
	}
	if req.State.Terminal() {
		return nil, models.NewConflictError("Request is already closed")
	}

	from := req.State
	now := time.Now()
	ok, err := s.requests.UpdateState(ctx, requestID, from, map[string]interface{}{
		"state":       models.RequestCancelled,
		"terminal_at": now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewConflictError("Request changed state, try again")
	}
	s.reapLock(requestID)

	req.State = models.RequestCancelled
	req.TerminalAt = &now

	cancelled := notifications.NewCancelledEvent(requestID)
	s.dispatch.ToUser(ctx, req.RequesterID, cancelled)
	if from == models.RequestClaimed && req.CollectorID != nil {
		s.dispatch.ToUser(ctx, *req.CollectorID, cancelled)
	}
	if from == models.RequestPending {
		// Pull it off every collector's candidate list.
		s.dispatch.ToCollectors(ctx, notifications.NewWithdrawnEvent(requestID))
	}
	return req, nil
}

// Complete transitions a claimed request to completed, recording the
// final transferred quantity. Either party may complete; a missing
// quantity defaults to the requested total.
func (s *LifecycleService) Complete(ctx context.Context, requestID string, actorID uint, completedKg *float64) (*models.PickupRequest, error) {
	lock := s.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	req, err := s.get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.State != models.RequestClaimed {
		return nil, models.NewConflictError("Only a claimed request can be completed")
	}
	if req.RequesterID != actorID && !req.ClaimedBy(actorID) {
		return nil, models.NewConflictError("Only the requester or the claimant can complete")
	}

	kg := req.TotalKg()
	if completedKg != nil {
		if *completedKg < 0 {
			return nil, models.NewValidationError("Completed quantity cannot be negative")
		}
		kg = *completedKg
	}

	now := time.Now()
	ok, err := s.requests.UpdateState(ctx, requestID, models.RequestClaimed, map[string]interface{}{
		"state":        models.RequestCompleted,
		"terminal_at":  now,
		"completed_kg": kg,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewConflictError("Request changed state, try again")
	}
	s.reapLock(requestID)

	req.State = models.RequestCompleted
	req.TerminalAt = &now
	req.CompletedKg = &kg

	completed := notifications.NewCompletedEvent(requestID, &kg)
	s.dispatch.ToUser(ctx, req.RequesterID, completed)
	if req.CollectorID != nil {
		s.dispatch.ToUser(ctx, *req.CollectorID, completed)
	}
	return req, nil
}

// SnapshotForCollector returns the pending list (optionally filtered by
// material) plus the collector's own claimed request.
func (s *LifecycleService) SnapshotForCollector(ctx context.Context, collectorID uint, material *models.MaterialType) (*CollectorSnapshot, error) {
	if material != nil && !material.Valid() {
		return nil, models.NewValidationError("Unknown material type: " + string(*material))
	}

	pending, err := s.requests.ListPending(ctx, material)
	if err != nil {
		return nil, err
	}

	snap := &CollectorSnapshot{Pending: pending}
	active, err := s.requests.ActiveByCollector(ctx, collectorID)
	switch {
	case err == nil:
		snap.Active = active
	case errors.Is(err, gorm.ErrRecordNotFound):
		// No claimed request.
	default:
		return nil, err
	}
	return snap, nil
}

// SnapshotForRequester returns the requester's active request, if any.
func (s *LifecycleService) SnapshotForRequester(ctx context.Context, requesterID uint) (*RequesterSnapshot, error) {
	active, err := s.requests.ActiveByRequester(ctx, requesterID)
	switch {
	case err == nil:
		return &RequesterSnapshot{Active: active}, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &RequesterSnapshot{}, nil
	default:
		return nil, err
	}
}

// CollectorStats reports the total kilograms a collector has picked up
// across completed requests.
func (s *LifecycleService) CollectorStats(ctx context.Context, collectorID uint) (float64, error) {
	return s.requests.CompletedKgByCollector(ctx, collectorID)
}
