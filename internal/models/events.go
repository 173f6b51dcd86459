package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event is the stored document. AttendeeCount and Attendees are maintained
// only through the attendance coordinator; len(Attendees) == AttendeeCount
// holds at all times because both are written in a single document update.
type Event struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name" validate:"required"`
	Description   string             `bson:"description" json:"description"`
	Location      string             `bson:"location" json:"location"`
	Date          time.Time          `bson:"date" json:"date" validate:"required"`
	CreatedBy     primitive.ObjectID `bson:"created_by" json:"created_by"`
	AttendeeCount int                `bson:"attendee_count" json:"attendee_count"`
	Attendees     []string           `bson:"attendees" json:"-"`
	CreatedAt     time.Time          `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt     time.Time          `bson:"updated_at,omitempty" json:"updated_at,omitempty"`

	// Creator is populated from the users collection on reads and broadcasts,
	// never stored on the event document itself.
	Creator *Creator `bson:"-" json:"creator,omitempty"`
}

// EventUpdate carries the creator-mutable fields of an event.
type EventUpdate struct {
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Date        time.Time `json:"date" validate:"required"`
}

func (e *Event) BeforeCreate() error {
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if e.Attendees == nil {
		e.Attendees = []string{}
	}
	return nil
}

// IsUpcoming reports whether the event sorts into the upcoming bucket.
func (e *Event) IsUpcoming(now time.Time) bool {
	return !e.Date.Before(now)
}
