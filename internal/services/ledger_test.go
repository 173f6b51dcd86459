package services

import (
	"context"
	"testing"
	"time"

	"github.com/joshua-takyi/gatherly/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestLedgerSeedsFromStoredAttendees(t *testing.T) {
	events := newFakeEventRepo()
	ledger := NewMembershipLedger(events)

	event, err := events.CreateEvent(context.Background(), &models.Event{
		Name:          "seeded",
		Date:          time.Now(),
		Attendees:     []string{"u1", "u2"},
		AttendeeCount: 2,
	})
	require.NoError(t, err)

	joined, err := ledger.HasJoined(context.Background(), event.ID.Hex(), "u1")
	require.NoError(t, err)
	assert.True(t, joined)

	joined, err = ledger.HasJoined(context.Background(), event.ID.Hex(), "u3")
	require.NoError(t, err)
	assert.False(t, joined)
}

func TestLedgerRecordJoin(t *testing.T) {
	events := newFakeEventRepo()
	ledger := NewMembershipLedger(events)

	event, err := events.CreateEvent(context.Background(), &models.Event{Name: "e", Date: time.Now()})
	require.NoError(t, err)

	already, err := ledger.RecordJoin(context.Background(), event.ID.Hex(), "u1")
	require.NoError(t, err)
	assert.False(t, already)

	already, err = ledger.RecordJoin(context.Background(), event.ID.Hex(), "u1")
	require.NoError(t, err)
	assert.True(t, already)
}

func TestLedgerUnknownEvent(t *testing.T) {
	ledger := NewMembershipLedger(newFakeEventRepo())

	_, err := ledger.HasJoined(context.Background(), primitive.NewObjectID().Hex(), "u1")
	assert.ErrorIs(t, err, models.ErrEventNotFound)

	_, err = ledger.RecordJoin(context.Background(), primitive.NewObjectID().Hex(), "u1")
	assert.ErrorIs(t, err, models.ErrEventNotFound)
}

func TestLedgerForgetRollsBackOneMembership(t *testing.T) {
	events := newFakeEventRepo()
	ledger := NewMembershipLedger(events)

	event, err := events.CreateEvent(context.Background(), &models.Event{Name: "e", Date: time.Now()})
	require.NoError(t, err)
	id := event.ID.Hex()

	_, err = ledger.RecordJoin(context.Background(), id, "u1")
	require.NoError(t, err)
	ledger.Forget(id, "u1")

	joined, err := ledger.HasJoined(context.Background(), id, "u1")
	require.NoError(t, err)
	assert.False(t, joined)
}

func TestLedgerDropRemovesEvent(t *testing.T) {
	events := newFakeEventRepo()
	ledger := NewMembershipLedger(events)

	event, err := events.CreateEvent(context.Background(), &models.Event{Name: "e", Date: time.Now()})
	require.NoError(t, err)
	id := event.ID.Hex()

	_, err = ledger.RecordJoin(context.Background(), id, "u1")
	require.NoError(t, err)

	// Deleting the event deletes its ledger; a later lookup re-seeds from
	// the store, which no longer has the event.
	require.NoError(t, events.DeleteEvent(context.Background(), id))
	ledger.Drop(id)

	_, err = ledger.HasJoined(context.Background(), id, "u1")
	assert.ErrorIs(t, err, models.ErrEventNotFound)
}
