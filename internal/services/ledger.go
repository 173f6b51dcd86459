package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/joshua-takyi/gatherly/internal/models"
)

// MembershipLedger answers "has user U already counted for event E?" and
// records new memberships. Sets are seeded lazily from the attendees array on
// the stored event document, so the ledger survives process restarts.
//
// The ledger's own mutex only protects the maps; callers mutating the same
// event serialize through the coordinator's per-event exclusion scope.
type MembershipLedger struct {
	mu      sync.Mutex
	members map[string]map[string]struct{}
	events  models.EventRepo
}

func NewMembershipLedger(events models.EventRepo) *MembershipLedger {
	return &MembershipLedger{
		members: make(map[string]map[string]struct{}),
		events:  events,
	}
}

// seed loads the member set for eventID from the store on first access.
// Returns models.ErrEventNotFound if the event does not exist.
func (l *MembershipLedger) seed(ctx context.Context, eventID string) (map[string]struct{}, error) {
	l.mu.Lock()
	if set, ok := l.members[eventID]; ok {
		l.mu.Unlock()
		return set, nil
	}
	l.mu.Unlock()

	event, err := l.events.GetEventByID(ctx, eventID)
	if err != nil {
		if err == models.ErrEventNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("seed ledger for event %s: %w", eventID, err)
	}

	set := make(map[string]struct{}, len(event.Attendees))
	for _, userID := range event.Attendees {
		set[userID] = struct{}{}
	}

	l.mu.Lock()
	// Another caller may have seeded while we were reading the store.
	if existing, ok := l.members[eventID]; ok {
		set = existing
	} else {
		l.members[eventID] = set
	}
	l.mu.Unlock()
	return set, nil
}

// HasJoined is a pure lookup with no side effect beyond lazy seeding.
func (l *MembershipLedger) HasJoined(ctx context.Context, eventID, userID string) (bool, error) {
	set, err := l.seed(ctx, eventID)
	if err != nil {
		return false, err
	}
	l.mu.Lock()
	_, member := set[userID]
	l.mu.Unlock()
	return member, nil
}

// RecordJoin adds userID to the event's member set and reports whether the
// user was already a member, in which case no count increment should occur.
func (l *MembershipLedger) RecordJoin(ctx context.Context, eventID, userID string) (alreadyMember bool, err error) {
	set, err := l.seed(ctx, eventID)
	if err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := set[userID]; ok {
		return true, nil
	}
	set[userID] = struct{}{}
	return false, nil
}

// Forget rolls back a membership recorded in the same join attempt after a
// persistence failure, so ledger and stored count never diverge.
func (l *MembershipLedger) Forget(eventID, userID string) {
	l.mu.Lock()
	if set, ok := l.members[eventID]; ok {
		delete(set, userID)
	}
	l.mu.Unlock()
}

// Drop removes the whole ledger for an event. Called when the event is deleted.
func (l *MembershipLedger) Drop(eventID string) {
	l.mu.Lock()
	delete(l.members, eventID)
	l.mu.Unlock()
}
