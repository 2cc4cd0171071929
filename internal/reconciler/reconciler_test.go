package reconciler

import (
	"testing"
	"time"

	"reciapp/internal/geo"
	"reciapp/internal/models"
	"reciapp/internal/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lima = geo.Point{Lat: -12.0464, Lng: -77.0428}

func encode(t *testing.T, ev notifications.Event) []byte {
	t.Helper()
	data, err := ev.Encode()
	require.NoError(t, err)
	return data
}

func pendingPickup(id string) *models.PickupRequest {
	return &models.PickupRequest{
		ID:          id,
		RequesterID: 1,
		Latitude:    -12.0500,
		Longitude:   -77.0400,
		State:       models.RequestPending,
		CreatedAt:   time.Now(),
		Materials: []models.RequestMaterial{
			{Position: 0, MaterialType: models.MaterialPlastic, QuantityKg: 2},
		},
	}
}

func TestCollectorViewInsertsCreatedWithDistance(t *testing.T) {
	v := NewCollectorView(lima)
	require.NoError(t, v.Apply(encode(t, notifications.NewCreatedEvent(pendingPickup("r1")))))

	pending := v.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "r1", pending[0].ID)
	assert.InDelta(t, 0.49, pending[0].DistanceKm, 0.05)
	assert.GreaterOrEqual(t, pending[0].ETAMinutes, 1)
}

func TestCollectorViewCreatedIsIdempotent(t *testing.T) {
	v := NewCollectorView(lima)
	ev := encode(t, notifications.NewCreatedEvent(pendingPickup("r1")))
	require.NoError(t, v.Apply(ev))
	require.NoError(t, v.Apply(ev))
	assert.Len(t, v.Pending(), 1)
}

func TestCollectorViewWithdrawnRemovesAndIsIdempotent(t *testing.T) {
	v := NewCollectorView(lima)
	require.NoError(t, v.Apply(encode(t, notifications.NewCreatedEvent(pendingPickup("r1")))))

	withdrawn := encode(t, notifications.NewWithdrawnEvent("r1"))
	require.NoError(t, v.Apply(withdrawn))
	assert.Empty(t, v.Pending())

	// Removing an absent id is a no-op.
	require.NoError(t, v.Apply(withdrawn))
	assert.Empty(t, v.Pending())
}

func TestCollectorViewCreatedAfterWithdrawnIsDropped(t *testing.T) {
	v := NewCollectorView(lima)
	require.NoError(t, v.Apply(encode(t, notifications.NewWithdrawnEvent("r1"))))
	require.NoError(t, v.Apply(encode(t, notifications.NewCreatedEvent(pendingPickup("r1")))))
	assert.Empty(t, v.Pending())
}

func TestCollectorViewOptimisticClaimAndRollback(t *testing.T) {
	v := NewCollectorView(lima)
	require.NoError(t, v.Apply(encode(t, notifications.NewCreatedEvent(pendingPickup("r1")))))

	actionID, ok := v.BeginClaim("r1")
	require.True(t, ok)
	assert.Empty(t, v.Pending())
	require.NotNil(t, v.Active())
	assert.Equal(t, "r1", v.Active().ID)

	// Conflict: another collector won. Roll back the overlay.
	v.ResolveClaim(actionID, models.NewConflictError("Request is no longer available"))
	assert.Nil(t, v.Active())
	assert.Len(t, v.Pending(), 1)

	// The withdrawal for the winner's claim then removes it for good.
	require.NoError(t, v.Apply(encode(t, notifications.NewWithdrawnEvent("r1"))))
	assert.Empty(t, v.Pending())
}

func TestCollectorViewRollbackAfterWithdrawnDoesNotRestore(t *testing.T) {
	v := NewCollectorView(lima)
	require.NoError(t, v.Apply(encode(t, notifications.NewCreatedEvent(pendingPickup("r1")))))

	actionID, ok := v.BeginClaim("r1")
	require.True(t, ok)

	// Withdrawal arrives before the conflict response.
	require.NoError(t, v.Apply(encode(t, notifications.NewWithdrawnEvent("r1"))))
	v.ResolveClaim(actionID, models.NewConflictError("Request is no longer available"))

	assert.Nil(t, v.Active())
	assert.Empty(t, v.Pending())
}

func TestCollectorViewClaimConfirmedKeepsActive(t *testing.T) {
	v := NewCollectorView(lima)
	require.NoError(t, v.Apply(encode(t, notifications.NewCreatedEvent(pendingPickup("r1")))))

	actionID, ok := v.BeginClaim("r1")
	require.True(t, ok)
	v.ResolveClaim(actionID, nil)

	require.NotNil(t, v.Active())

	// Cancellation by the requester clears the pickup and surfaces a notice.
	require.NoError(t, v.Apply(encode(t, notifications.NewCancelledEvent("r1"))))
	assert.Nil(t, v.Active())
	notice, ok := v.TerminalNotice()
	require.True(t, ok)
	assert.Equal(t, notifications.EventCancelled, notice)

	_, again := v.TerminalNotice()
	assert.False(t, again)
}

func TestCollectorViewSecondClaimWhileActiveRefused(t *testing.T) {
	v := NewCollectorView(lima)
	require.NoError(t, v.Apply(encode(t, notifications.NewCreatedEvent(pendingPickup("r1")))))
	require.NoError(t, v.Apply(encode(t, notifications.NewCreatedEvent(pendingPickup("r2")))))

	_, ok := v.BeginClaim("r1")
	require.True(t, ok)
	_, ok = v.BeginClaim("r2")
	assert.False(t, ok)
}

func TestCollectorViewIgnoreHidesAcrossSnapshots(t *testing.T) {
	v := NewCollectorView(lima)
	require.NoError(t, v.Apply(encode(t, notifications.NewCreatedEvent(pendingPickup("r1")))))
	require.NoError(t, v.Apply(encode(t, notifications.NewCreatedEvent(pendingPickup("r2")))))

	v.Ignore("r1")
	pending := v.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "r2", pending[0].ID)

	// A hidden id cannot be claimed locally.
	_, ok := v.BeginClaim("r1")
	assert.False(t, ok)

	// The preference survives a snapshot resync.
	snap := struct {
		Pending []models.PickupRequest `json:"pending"`
		Active  *models.PickupRequest  `json:"active"`
	}{
		Pending: []models.PickupRequest{*pendingPickup("r1"), *pendingPickup("r2")},
	}
	require.NoError(t, v.Apply(encode(t, notifications.NewSnapshotEvent(snap))))
	pending = v.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "r2", pending[0].ID)

	// Unignore makes it visible on the next resync.
	v.Unignore("r1")
	require.NoError(t, v.Apply(encode(t, notifications.NewSnapshotEvent(snap))))
	assert.Len(t, v.Pending(), 2)
}

func TestCollectorViewSnapshotReplacesState(t *testing.T) {
	v := NewCollectorView(lima)
	require.NoError(t, v.Apply(encode(t, notifications.NewCreatedEvent(pendingPickup("stale")))))

	snap := struct {
		Pending []models.PickupRequest `json:"pending"`
		Active  *models.PickupRequest  `json:"active"`
	}{
		Pending: []models.PickupRequest{*pendingPickup("fresh")},
	}
	require.NoError(t, v.Apply(encode(t, notifications.NewSnapshotEvent(snap))))

	pending := v.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "fresh", pending[0].ID)
}

func TestRequesterViewClaimedThenLocationRecomputesETA(t *testing.T) {
	v := NewRequesterView(lima)
	actionID, ok := v.BeginSubmit()
	require.True(t, ok)
	v.ResolveSubmit(actionID, "r1", nil)

	require.NoError(t, v.Apply(encode(t, notifications.NewClaimedEvent("r1", 7))))
	active := v.Active()
	require.NotNil(t, active)
	assert.Equal(t, models.RequestClaimed, active.State)
	assert.Equal(t, uint(7), active.ClaimantID)

	require.NoError(t, v.Apply(encode(t, notifications.NewLocationEvent("r1", -12.0500, -77.0400))))
	active = v.Active()
	require.NotNil(t, active.LastPosition)
	assert.InDelta(t, 0.49, active.DistanceKm, 0.05)
	assert.GreaterOrEqual(t, active.ETAMinutes, 1)
}

func TestRequesterViewDropsLocationBeforeClaim(t *testing.T) {
	v := NewRequesterView(lima)
	actionID, ok := v.BeginSubmit()
	require.True(t, ok)
	v.ResolveSubmit(actionID, "r1", nil)

	require.NoError(t, v.Apply(encode(t, notifications.NewLocationEvent("r1", -12.05, -77.04))))
	assert.Nil(t, v.Active().LastPosition)
}

func TestRequesterViewStaleLocationAfterTerminalIsDropped(t *testing.T) {
	v := NewRequesterView(lima)
	actionID, ok := v.BeginSubmit()
	require.True(t, ok)
	v.ResolveSubmit(actionID, "r1", nil)
	require.NoError(t, v.Apply(encode(t, notifications.NewClaimedEvent("r1", 7))))

	kg := 2.0
	require.NoError(t, v.Apply(encode(t, notifications.NewCompletedEvent("r1", &kg))))
	assert.Nil(t, v.Active())

	notice, ok := v.TerminalNotice()
	require.True(t, ok)
	assert.Equal(t, notifications.EventCompleted, notice)

	// A late tick for the now-terminal id must not resurrect the view.
	require.NoError(t, v.Apply(encode(t, notifications.NewLocationEvent("r1", -12.05, -77.05))))
	assert.Nil(t, v.Active())
	_, again := v.TerminalNotice()
	assert.False(t, again)
}

func TestRequesterViewSubmitRollbackOnError(t *testing.T) {
	v := NewRequesterView(lima)
	actionID, ok := v.BeginSubmit()
	require.True(t, ok)
	require.NotNil(t, v.Active())

	v.ResolveSubmit(actionID, "", models.NewValidationError("bad payload"))
	assert.Nil(t, v.Active())
}

func TestRequesterViewOptimisticCancelRollback(t *testing.T) {
	v := NewRequesterView(lima)
	actionID, ok := v.BeginSubmit()
	require.True(t, ok)
	v.ResolveSubmit(actionID, "r1", nil)

	cancelID, ok := v.BeginTerminal()
	require.True(t, ok)
	assert.Nil(t, v.Active())

	v.ResolveTerminal(cancelID, models.NewConflictError("Request changed state, try again"))
	require.NotNil(t, v.Active())
	assert.Equal(t, "r1", v.Active().ID)
}

func TestRequesterViewSnapshotSetsActive(t *testing.T) {
	v := NewRequesterView(lima)

	collector := uint(7)
	snap := struct {
		Active *models.PickupRequest `json:"active"`
	}{
		Active: &models.PickupRequest{ID: "r1", State: models.RequestClaimed, CollectorID: &collector},
	}
	require.NoError(t, v.Apply(encode(t, notifications.NewSnapshotEvent(snap))))

	active := v.Active()
	require.NotNil(t, active)
	assert.Equal(t, models.RequestClaimed, active.State)
	assert.Equal(t, uint(7), active.ClaimantID)

	// An empty snapshot returns the view to idle.
	empty := struct {
		Active *models.PickupRequest `json:"active"`
	}{}
	require.NoError(t, v.Apply(encode(t, notifications.NewSnapshotEvent(empty))))
	assert.Nil(t, v.Active())
}
