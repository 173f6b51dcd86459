package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joshua-takyi/gatherly/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventService struct {
	eventsRepo models.EventRepo
	usersRepo  models.UserRepo
	ledger     *MembershipLedger
}

func NewEventService(eventsRepo models.EventRepo, usersRepo models.UserRepo, ledger *MembershipLedger) *EventService {
	return &EventService{
		eventsRepo: eventsRepo,
		usersRepo:  usersRepo,
		ledger:     ledger,
	}
}

func (es *EventService) CreateEvent(ctx context.Context, event *models.Event, creatorID string) (*models.Event, error) {
	if err := models.Validate.Struct(event); err != nil {
		return nil, fmt.Errorf("invalid event data provided: %v", err)
	}

	oid, err := primitive.ObjectIDFromHex(creatorID)
	if err != nil {
		return nil, models.ErrUnauthorized
	}
	event.CreatedBy = oid
	event.AttendeeCount = 0
	event.Attendees = []string{}

	created, err := es.eventsRepo.CreateEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	es.populateCreators(ctx, []*models.Event{created})
	return created, nil
}

func (es *EventService) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	event, err := es.eventsRepo.GetEventByID(ctx, id)
	if err != nil {
		return nil, err
	}
	es.populateCreators(ctx, []*models.Event{event})
	return event, nil
}

func (es *EventService) ListEvents(ctx context.Context) ([]*models.Event, error) {
	events, err := es.eventsRepo.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	es.populateCreators(ctx, events)
	return events, nil
}

func (es *EventService) SearchEvents(ctx context.Context, query string) ([]*models.Event, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query parameter is required")
	}
	events, err := es.eventsRepo.SearchEvents(ctx, query)
	if err != nil {
		return nil, err
	}
	es.populateCreators(ctx, events)
	return events, nil
}

func (es *EventService) ListUpcomingEvents(ctx context.Context) ([]*models.Event, error) {
	events, err := es.eventsRepo.ListUpcomingEvents(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	es.populateCreators(ctx, events)
	return events, nil
}

func (es *EventService) ListPastEvents(ctx context.Context) ([]*models.Event, error) {
	events, err := es.eventsRepo.ListPastEvents(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	es.populateCreators(ctx, events)
	return events, nil
}

// UpdateEvent applies creator-mutable fields. Only the event's creator may
// update it.
func (es *EventService) UpdateEvent(ctx context.Context, id string, update *models.EventUpdate, requesterID string) (*models.Event, error) {
	if err := models.Validate.Struct(update); err != nil {
		return nil, fmt.Errorf("invalid event data provided: %v", err)
	}

	event, err := es.eventsRepo.GetEventByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.CreatedBy.Hex() != requesterID {
		return nil, models.ErrForbidden
	}

	updated, err := es.eventsRepo.UpdateEvent(ctx, id, update)
	if err != nil {
		return nil, err
	}
	es.populateCreators(ctx, []*models.Event{updated})
	return updated, nil
}

// DeleteEvent removes the event and its membership ledger. Only the event's
// creator may delete it.
func (es *EventService) DeleteEvent(ctx context.Context, id string, requesterID string) error {
	event, err := es.eventsRepo.GetEventByID(ctx, id)
	if err != nil {
		return err
	}
	if event.CreatedBy.Hex() != requesterID {
		return models.ErrForbidden
	}

	if err := es.eventsRepo.DeleteEvent(ctx, id); err != nil {
		return err
	}
	es.ledger.Drop(id)
	return nil
}

// populateCreators fills in the public creator projection for each event.
// Lookups are memoized per call since lists often share a handful of creators.
func (es *EventService) populateCreators(ctx context.Context, events []*models.Event) {
	cache := make(map[string]*models.Creator)
	for _, event := range events {
		creatorID := event.CreatedBy.Hex()
		if pub, ok := cache[creatorID]; ok {
			event.Creator = pub
			continue
		}
		user, err := es.usersRepo.GetUserByID(ctx, creatorID)
		if err != nil {
			continue
		}
		pub := user.Public()
		cache[creatorID] = &pub
		event.Creator = &pub
	}
}
