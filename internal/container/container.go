package container

import (
	"log/slog"

	"github.com/joshua-takyi/gatherly/internal/config"
	"github.com/joshua-takyi/gatherly/internal/models"
	"github.com/joshua-takyi/gatherly/internal/realtime"
	"github.com/joshua-takyi/gatherly/internal/services"
	"go.mongodb.org/mongo-driver/mongo"
)

// Container holds all application dependencies
type Container struct {
	Logger *slog.Logger
	Config *config.Config

	MongoDBClient *mongo.Client

	UserService       *services.UserService
	EventService      *services.EventService
	AttendanceService *services.AttendanceService
	Hub               *realtime.Hub
}

// NewContainer creates a new dependency injection container
func NewContainer(
	logger *slog.Logger,
	cfg *config.Config,
	mongoDBClient *mongo.Client,
) *Container {
	repo := models.MongodbNewRepo(mongoDBClient)

	hub := realtime.NewHub(logger)
	ledger := services.NewMembershipLedger(repo)

	userService := services.NewUserService(repo)
	eventService := services.NewEventService(repo, repo, ledger)
	attendanceService := services.NewAttendanceService(repo, repo, ledger, hub, logger)

	return &Container{
		Logger:            logger,
		Config:            cfg,
		MongoDBClient:     mongoDBClient,
		UserService:       userService,
		EventService:      eventService,
		AttendanceService: attendanceService,
		Hub:               hub,
	}
}
