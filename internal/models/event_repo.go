package models

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	EventDbName  = "gatherly"
	EventColName = "events"
)

type EventRepo interface {
	CreateEvent(ctx context.Context, event *Event) (*Event, error)
	GetEventByID(ctx context.Context, id string) (*Event, error)
	EventExists(ctx context.Context, id string) (bool, error)
	ListEvents(ctx context.Context) ([]*Event, error)
	SearchEvents(ctx context.Context, query string) ([]*Event, error)
	ListUpcomingEvents(ctx context.Context, now time.Time) ([]*Event, error)
	ListPastEvents(ctx context.Context, now time.Time) ([]*Event, error)
	UpdateEvent(ctx context.Context, id string, update *EventUpdate) (*Event, error)
	DeleteEvent(ctx context.Context, id string) error
	AddAttendee(ctx context.Context, id string, userID string) (*Event, error)
}

// parseEventID turns a client-supplied hex id into an ObjectID. A malformed
// id is indistinguishable from a stale one as far as callers care.
func parseEventID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrEventNotFound
	}
	return oid, nil
}

func (mdb *MongodbRepo) CreateEvent(ctx context.Context, event *Event) (*Event, error) {
	if err := event.BeforeCreate(); err != nil {
		return nil, fmt.Errorf("failed to prepare event for creation: %w", err)
	}
	col, err := mdb.GetCollection(ctx, EventDbName, EventColName)
	if err != nil {
		return nil, fmt.Errorf("error getting collection: %v", err)
	}

	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now

	if _, err := col.InsertOne(ctx, event); err != nil {
		return nil, fmt.Errorf("error inserting event: %v", err)
	}
	return event, nil
}

func (mdb *MongodbRepo) GetEventByID(ctx context.Context, id string) (*Event, error) {
	oid, err := parseEventID(id)
	if err != nil {
		return nil, err
	}
	col, err := mdb.GetCollection(ctx, EventDbName, EventColName)
	if err != nil {
		return nil, fmt.Errorf("error getting collection: %v", err)
	}

	var event Event
	if err := col.FindOne(ctx, bson.M{"_id": oid}).Decode(&event); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("error finding event: %v", err)
	}
	return &event, nil
}

func (mdb *MongodbRepo) EventExists(ctx context.Context, id string) (bool, error) {
	oid, err := parseEventID(id)
	if err != nil {
		return false, nil
	}
	col, err := mdb.GetCollection(ctx, EventDbName, EventColName)
	if err != nil {
		return false, fmt.Errorf("error getting collection: %v", err)
	}

	count, err := col.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("error counting events: %v", err)
	}
	return count > 0, nil
}

func (mdb *MongodbRepo) ListEvents(ctx context.Context) ([]*Event, error) {
	return mdb.findEvents(ctx, bson.M{}, nil)
}

// searchFilter matches the query case-insensitively against name or description.
func searchFilter(query string) bson.M {
	return bson.M{
		"$or": bson.A{
			bson.M{"name": bson.M{"$regex": query, "$options": "i"}},
			bson.M{"description": bson.M{"$regex": query, "$options": "i"}},
		},
	}
}

// upcomingQuery selects events dated now or later, soonest first. An event
// dated exactly now is still upcoming, matching Event.IsUpcoming.
func upcomingQuery(now time.Time) (bson.M, bson.D) {
	return bson.M{"date": bson.M{"$gte": now}}, bson.D{{Key: "date", Value: 1}}
}

// pastQuery selects events dated strictly before now, most recent first.
func pastQuery(now time.Time) (bson.M, bson.D) {
	return bson.M{"date": bson.M{"$lt": now}}, bson.D{{Key: "date", Value: -1}}
}

func (mdb *MongodbRepo) SearchEvents(ctx context.Context, query string) ([]*Event, error) {
	return mdb.findEvents(ctx, searchFilter(query), nil)
}

func (mdb *MongodbRepo) ListUpcomingEvents(ctx context.Context, now time.Time) ([]*Event, error) {
	filter, sort := upcomingQuery(now)
	return mdb.findEvents(ctx, filter, options.Find().SetSort(sort))
}

func (mdb *MongodbRepo) ListPastEvents(ctx context.Context, now time.Time) ([]*Event, error) {
	filter, sort := pastQuery(now)
	return mdb.findEvents(ctx, filter, options.Find().SetSort(sort))
}

func (mdb *MongodbRepo) findEvents(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*Event, error) {
	col, err := mdb.GetCollection(ctx, EventDbName, EventColName)
	if err != nil {
		return nil, fmt.Errorf("error getting collection: %v", err)
	}

	var cursor *mongo.Cursor
	if opts != nil {
		cursor, err = col.Find(ctx, filter, opts)
	} else {
		cursor, err = col.Find(ctx, filter)
	}
	if err != nil {
		return nil, fmt.Errorf("error finding events: %v", err)
	}
	defer cursor.Close(ctx)

	var events []*Event
	for cursor.Next(ctx) {
		var event Event
		if err := cursor.Decode(&event); err != nil {
			return nil, fmt.Errorf("error decoding event: %v", err)
		}
		events = append(events, &event)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %v", err)
	}
	return events, nil
}

func (mdb *MongodbRepo) UpdateEvent(ctx context.Context, id string, update *EventUpdate) (*Event, error) {
	oid, err := parseEventID(id)
	if err != nil {
		return nil, err
	}
	col, err := mdb.GetCollection(ctx, EventDbName, EventColName)
	if err != nil {
		return nil, fmt.Errorf("error getting collection: %v", err)
	}

	set := bson.M{
		"$set": bson.M{
			"name":        update.Name,
			"description": update.Description,
			"location":    update.Location,
			"date":        update.Date,
			"updated_at":  time.Now(),
		},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var event Event
	if err := col.FindOneAndUpdate(ctx, bson.M{"_id": oid}, set, opts).Decode(&event); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("error updating event: %v", err)
	}
	return &event, nil
}

func (mdb *MongodbRepo) DeleteEvent(ctx context.Context, id string) error {
	oid, err := parseEventID(id)
	if err != nil {
		return err
	}
	col, err := mdb.GetCollection(ctx, EventDbName, EventColName)
	if err != nil {
		return fmt.Errorf("error getting collection: %v", err)
	}

	res, err := col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("error deleting event: %v", err)
	}
	if res.DeletedCount == 0 {
		return ErrEventNotFound
	}
	return nil
}

// AddAttendee records userID on the event document and bumps the count in a
// single update, so the stored set and counter can never drift apart. The
// filter excludes documents already holding the user, which makes the write
// idempotent at the store level as well.
func (mdb *MongodbRepo) AddAttendee(ctx context.Context, id string, userID string) (*Event, error) {
	oid, err := parseEventID(id)
	if err != nil {
		return nil, err
	}
	col, err := mdb.GetCollection(ctx, EventDbName, EventColName)
	if err != nil {
		return nil, fmt.Errorf("error getting collection: %v", err)
	}

	filter := bson.M{"_id": oid, "attendees": bson.M{"$ne": userID}}
	update := bson.M{
		"$addToSet": bson.M{"attendees": userID},
		"$inc":      bson.M{"attendee_count": 1},
		"$set":      bson.M{"updated_at": time.Now()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var event Event
	err = col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&event)
	if err == nil {
		return &event, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("error adding attendee: %v", err)
	}

	// Filter miss: either the event is gone or the user was already counted.
	// Re-fetch to tell the two apart; an existing document is returned as-is.
	existing, fetchErr := mdb.GetEventByID(ctx, id)
	if fetchErr != nil {
		return nil, fetchErr
	}
	return existing, nil
}
