package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/joshua-takyi/gatherly/internal/models"
	"github.com/joshua-takyi/gatherly/internal/realtime"
	"github.com/joshua-takyi/gatherly/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type memEventRepo struct {
	mu     sync.Mutex
	events map[string]*models.Event
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{events: make(map[string]*models.Event)}
}

func (m *memEventRepo) CreateEvent(ctx context.Context, event *models.Event) (*models.Event, error) {
	if err := event.BeforeCreate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID.Hex()] = event
	return event, nil
}

func (m *memEventRepo) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, models.ErrEventNotFound
	}
	cp := *e
	cp.Attendees = append([]string(nil), e.Attendees...)
	return &cp, nil
}

func (m *memEventRepo) EventExists(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[id]
	return ok, nil
}

func (m *memEventRepo) ListEvents(ctx context.Context) ([]*models.Event, error) { return nil, nil }
func (m *memEventRepo) SearchEvents(ctx context.Context, query string) ([]*models.Event, error) {
	return nil, nil
}
func (m *memEventRepo) ListUpcomingEvents(ctx context.Context, now time.Time) ([]*models.Event, error) {
	return nil, nil
}
func (m *memEventRepo) ListPastEvents(ctx context.Context, now time.Time) ([]*models.Event, error) {
	return nil, nil
}
func (m *memEventRepo) UpdateEvent(ctx context.Context, id string, update *models.EventUpdate) (*models.Event, error) {
	return nil, models.ErrEventNotFound
}
func (m *memEventRepo) DeleteEvent(ctx context.Context, id string) error { return nil }

func (m *memEventRepo) AddAttendee(ctx context.Context, id string, userID string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, models.ErrEventNotFound
	}
	for _, existing := range e.Attendees {
		if existing == userID {
			cp := *e
			return &cp, nil
		}
	}
	e.Attendees = append(e.Attendees, userID)
	e.AttendeeCount++
	cp := *e
	cp.Attendees = append([]string(nil), e.Attendees...)
	return &cp, nil
}

type memUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*models.User
	byEmail map[string]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]*models.User),
	}
}

func (m *memUserRepo) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[user.Email]; ok {
		return nil, models.ErrUserExists
	}
	if err := user.BeforeCreate(); err != nil {
		return nil, err
	}
	m.byID[user.ID.Hex()] = user
	m.byEmail[user.Email] = user
	return user, nil
}

func (m *memUserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[email]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return u, nil
}

func (m *memUserRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return u, nil
}

type wsFixture struct {
	server *httptest.Server
	events *memEventRepo
	users  *services.UserService
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	t.Setenv("JWT_SECRET", "ws-test-secret")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eventRepo := newMemEventRepo()
	userRepo := newMemUserRepo()

	hub := realtime.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	ledger := services.NewMembershipLedger(eventRepo)
	userService := services.NewUserService(userRepo)
	attendance := services.NewAttendanceService(eventRepo, userRepo, ledger, hub, logger)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/v1/ws", ServeWS(hub, userService, attendance, logger))

	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})

	return &wsFixture{server: server, events: eventRepo, users: userService}
}

func (fx *wsFixture) register(t *testing.T, name string) *services.AuthResult {
	t.Helper()
	res, err := fx.users.Register(context.Background(), name, name+"@example.com", "S3cret-pass")
	require.NoError(t, err)
	return res
}

func (fx *wsFixture) addEvent(t *testing.T, creatorID string) *models.Event {
	t.Helper()
	oid, err := primitive.ObjectIDFromHex(creatorID)
	require.NoError(t, err)
	event := &models.Event{Name: "meetup", Date: time.Now().Add(time.Hour), CreatedBy: oid}
	created, err := fx.events.CreateEvent(context.Background(), event)
	require.NoError(t, err)
	return created
}

func (fx *wsFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(fx.server.URL, "http") + "/api/v1/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendAction(t *testing.T, conn *websocket.Conn, action, eventID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]string{
		"action":  action,
		"eventId": eventID,
	}))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) realtime.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env realtime.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func assertSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var env realtime.Envelope
	err := conn.ReadJSON(&env)
	require.Error(t, err, "expected no frame, got %+v", env)
}

func TestWebsocketJoinFlow(t *testing.T) {
	fx := newWSFixture(t)
	creator := fx.register(t, "carol")
	alice := fx.register(t, "alice")
	bob := fx.register(t, "bob")
	event := fx.addEvent(t, creator.User.ID)

	viewer := fx.dial(t, "") // a guest watching the event page
	sendAction(t, viewer, "joinRoom", event.ID.Hex())

	joiner := fx.dial(t, alice.Token)
	sendAction(t, joiner, "joinRoom", event.ID.Hex())
	// Give both subscriptions time to reach the hub before joining.
	time.Sleep(100 * time.Millisecond)
	sendAction(t, joiner, "requestJoin", event.ID.Hex())

	env := readEnvelope(t, viewer)
	assert.Equal(t, realtime.TypeAttendeeUpdated, env.Type)
	require.NotNil(t, env.Event)
	assert.Equal(t, 1, env.Event.AttendeeCount)
	require.NotNil(t, env.Event.Creator, "broadcast event must carry creator info")
	assert.Equal(t, "carol", env.Event.Creator.Name)

	// The joiner is subscribed too and sees the same update.
	env = readEnvelope(t, joiner)
	assert.Equal(t, 1, env.Event.AttendeeCount)

	// A second user pushes the count to 2, in order.
	second := fx.dial(t, bob.Token)
	sendAction(t, second, "requestJoin", event.ID.Hex())

	env = readEnvelope(t, viewer)
	assert.Equal(t, 2, env.Event.AttendeeCount)

	// A repeat join is silent: the viewer sees no third frame.
	sendAction(t, joiner, "requestJoin", event.ID.Hex())
	assertSilent(t, viewer)
}

func TestWebsocketRoomIsolation(t *testing.T) {
	fx := newWSFixture(t)
	creator := fx.register(t, "carol")
	alice := fx.register(t, "alice")
	eventA := fx.addEvent(t, creator.User.ID)
	eventB := fx.addEvent(t, creator.User.ID)

	watcherB := fx.dial(t, "")
	sendAction(t, watcherB, "joinRoom", eventB.ID.Hex())
	time.Sleep(100 * time.Millisecond)

	joiner := fx.dial(t, alice.Token)
	sendAction(t, joiner, "requestJoin", eventA.ID.Hex())

	// Subscribed only to event B: event A's update never arrives.
	assertSilent(t, watcherB)
}

func TestWebsocketGuestCannotJoin(t *testing.T) {
	fx := newWSFixture(t)
	creator := fx.register(t, "carol")
	event := fx.addEvent(t, creator.User.ID)

	guest := fx.dial(t, "")
	sendAction(t, guest, "requestJoin", event.ID.Hex())

	env := readEnvelope(t, guest)
	assert.Equal(t, "error", env.Type)
	assert.Equal(t, models.ErrUnauthorized.Error(), env.Error)

	stored, err := fx.events.GetEventByID(context.Background(), event.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 0, stored.AttendeeCount)
}

func TestWebsocketJoinUnknownEvent(t *testing.T) {
	fx := newWSFixture(t)
	alice := fx.register(t, "alice")

	conn := fx.dial(t, alice.Token)
	sendAction(t, conn, "requestJoin", "64b000000000000000000000")

	env := readEnvelope(t, conn)
	assert.Equal(t, "error", env.Type)
	assert.Equal(t, models.ErrEventNotFound.Error(), env.Error)
}
