// Package httpapi exposes the file service over HTTP with fiber.
package httpapi

import (
	"context"
	"math"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"github.com/dmitrijs2005/filevault/internal/server/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

const shutdownTimeout = 10 * time.Second

// FileAPI is the part of services.FileService the handlers call.
type FileAPI interface {
	Upload(ctx context.Context, req services.UploadRequest) (*models.File, error)
	IssueDownloadToken(ctx context.Context, fileID, requesterID string) (string, time.Time, error)
	OpenDownload(ctx context.Context, token string, preview bool) (*services.Delivery, error)
	Delete(ctx context.Context, fileID, actorID string) error
	Purge(ctx context.Context, ownerID, password string) (*services.PurgeResult, error)
	UpdateDescription(ctx context.Context, fileID, actorID, description string) (*models.File, error)
	Get(ctx context.Context, fileID, actorID string) (*models.File, error)
	ListProject(ctx context.Context, projectID, actorID string) ([]*models.File, error)
	Usage(ctx context.Context, ownerID string) (*models.QuotaUsage, error)
}

// Authenticator exchanges credentials for an access token.
type Authenticator interface {
	Login(ctx context.Context, userName, password string) (string, error)
}

type Server struct {
	address string
	app     *fiber.App
	logger  logging.Logger
}

func NewServer(address string, files FileAPI, directory Authenticator, secretKey []byte, l logging.Logger) *Server {
	logger := l.With("module", "http_server")

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StreamRequestBody:     true,
		BodyLimit:             math.MaxInt32,
		ErrorHandler:          errorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Header: common.RequestIDHeaderName, ContextKey: requestIDLocal}))
	app.Use(requestLogger(logger))

	h := &handlers{files: files, directory: directory, logger: logger}

	app.Get("/healthz", h.health)
	app.Post("/api/login", h.login)
	app.Get("/api/download", h.download)

	api := app.Group("/api", bearerAuth(secretKey))
	api.Post("/projects/:projectID/files", h.upload)
	api.Get("/projects/:projectID/files", h.listProject)
	api.Get("/files/:fileID", h.getFile)
	api.Patch("/files/:fileID", h.describe)
	api.Delete("/files/:fileID", h.deleteFile)
	api.Post("/files/:fileID/token", h.issueToken)
	api.Get("/usage", h.usage)
	api.Post("/purge", h.purge)

	return &Server{address: address, app: app, logger: logger}
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Run(ctx context.Context) error {

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := s.app.Listen(s.address); err != nil {
		return err
	}

	return nil
}
