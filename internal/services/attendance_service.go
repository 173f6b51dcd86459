package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshua-takyi/gatherly/internal/models"
)

// DefaultJoinTimeout bounds how long a join waits on its event's exclusion
// scope before failing with ErrBusy.
const DefaultJoinTimeout = 5 * time.Second

// Broadcaster fans an updated event out to every connection subscribed to
// that event's room. Publish must only enqueue: delivery happens elsewhere
// so a slow subscriber never blocks a join.
type Broadcaster interface {
	Publish(eventID string, event *models.Event)
}

// AttendanceService is the single entry point for "user U wants to attend
// event E". It serializes joins per event, consults the membership ledger,
// persists the count mutation, and hands the refreshed event to the
// broadcaster.
type AttendanceService struct {
	events      models.EventRepo
	users       models.UserRepo
	ledger      *MembershipLedger
	locks       *KeyedMutex
	broadcaster Broadcaster
	logger      *slog.Logger
	joinTimeout time.Duration
}

func NewAttendanceService(
	events models.EventRepo,
	users models.UserRepo,
	ledger *MembershipLedger,
	broadcaster Broadcaster,
	logger *slog.Logger,
) *AttendanceService {
	return &AttendanceService{
		events:      events,
		users:       users,
		ledger:      ledger,
		locks:       NewKeyedMutex(),
		broadcaster: broadcaster,
		logger:      logger,
		joinTimeout: DefaultJoinTimeout,
	}
}

// SetJoinTimeout overrides the bounded wait on the per-event scope.
func (s *AttendanceService) SetJoinTimeout(d time.Duration) {
	s.joinTimeout = d
}

// Ledger exposes the membership ledger for lookups and event-deletion cleanup.
func (s *AttendanceService) Ledger() *MembershipLedger {
	return s.ledger
}

// Join registers userID as an attendee of eventID.
//
// A repeat join is a silent no-op: it succeeds, increments nothing and
// broadcasts nothing. A failed join leaves no partial state behind. Only a
// successful first join publishes the refreshed event to the room, in the
// order joins completed for that event.
func (s *AttendanceService) Join(ctx context.Context, eventID, userID string) (*models.Event, error) {
	if userID == "" {
		return nil, models.ErrUnauthorized
	}
	// A credential naming a user we don't know is a guest session.
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if err == models.ErrUserNotFound {
			return nil, models.ErrUnauthorized
		}
		return nil, fmt.Errorf("resolve user %s: %w", userID, err)
	}

	// Fail fast before taking the event's scope; a join to an unknown event
	// must not contend with live ones. A delete racing past this check is
	// still caught by the ledger seed below.
	exists, err := s.events.EventExists(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("check event %s: %w", eventID, err)
	}
	if !exists {
		return nil, models.ErrEventNotFound
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.joinTimeout)
	defer cancel()
	release, err := s.locks.Acquire(lockCtx, eventID)
	if err != nil {
		return nil, err
	}
	defer release()

	alreadyMember, err := s.ledger.RecordJoin(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if alreadyMember {
		event, err := s.events.GetEventByID(ctx, eventID)
		if err != nil {
			return nil, err
		}
		s.populateCreator(ctx, event)
		return event, nil
	}

	event, err := s.events.AddAttendee(ctx, eventID, userID)
	if err != nil {
		// The ledger already holds the membership; roll it back so it never
		// diverges from the stored count.
		s.ledger.Forget(eventID, userID)
		if err == models.ErrEventNotFound {
			return nil, err
		}
		s.logger.Error("Persisting attendee failed",
			"event_id", eventID,
			"user_id", userID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	s.populateCreator(ctx, event)

	// Publish enqueues only; the hub's run loop does the fan-out. Enqueueing
	// while the scope is held keeps broadcast order equal to join order.
	s.broadcaster.Publish(eventID, event)

	s.logger.Info("Attendee joined",
		"event_id", eventID,
		"user_id", user.ID.Hex(),
		"attendee_count", event.AttendeeCount,
	)
	return event, nil
}

// HasJoined reports whether userID already counts toward eventID.
func (s *AttendanceService) HasJoined(ctx context.Context, eventID, userID string) (bool, error) {
	return s.ledger.HasJoined(ctx, eventID, userID)
}

func (s *AttendanceService) populateCreator(ctx context.Context, event *models.Event) {
	creator, err := s.users.GetUserByID(ctx, event.CreatedBy.Hex())
	if err != nil {
		s.logger.Warn("Creator lookup failed",
			"event_id", event.ID.Hex(),
			"creator_id", event.CreatedBy.Hex(),
			"error", err,
		)
		return
	}
	pub := creator.Public()
	event.Creator = &pub
}
