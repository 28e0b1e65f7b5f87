package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/drivevectorai/backend/internal/api/handlers"
	"github.com/drivevectorai/backend/internal/config"
	"github.com/drivevectorai/backend/internal/core"
	"github.com/drivevectorai/backend/internal/ingest"
	"github.com/drivevectorai/backend/internal/logging"
	"github.com/drivevectorai/backend/internal/scan"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     logging.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, store core.Store, embedder core.Embedder, orch *ingest.Orchestrator, scanner *scan.Scanner, logger logging.Logger) *Server {
	ingestHandler := handlers.NewIngestHandler(orch)
	jobHandler := handlers.NewJobHandler(store)
	docHandler := handlers.NewDocumentHandler(store)
	searchHandler := handlers.NewSearchHandler(store, embedder)
	scanHandler := handlers.NewScanHandler(scanner, store)
	folderHandler := handlers.NewFolderHandler(store)
	systemHandler := handlers.NewSystemHandler(store)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", systemHandler.Health)

	r.Route("/api", func(api chi.Router) {
		api.Post("/ingest", ingestHandler.StartIngestion)
		api.Post("/ingest/reprocess", ingestHandler.ReprocessBatch)
		api.Post("/ingest/reprocess/{driveFileID}", ingestHandler.Reprocess)

		api.Get("/jobs", jobHandler.ListJobs)
		api.Get("/jobs/{jobID}", jobHandler.GetJob)
		api.Get("/jobs/{jobID}/logs", jobHandler.GetJobLogs)

		api.Get("/documents", docHandler.ListDocuments)
		api.Get("/documents/{driveFileID}", docHandler.GetDocument)
		api.Delete("/documents/{driveFileID}", docHandler.DeleteDocument)
		api.Get("/documents/{driveFileID}/logs", docHandler.GetDocumentLogs)
		api.Get("/documents/{driveFileID}/versions", docHandler.GetDocumentVersions)

		api.Post("/search", searchHandler.Search)

		api.Post("/scan", scanHandler.StartScan)
		api.Get("/scan/sessions", scanHandler.ListSessions)
		api.Get("/scan/sessions/{sessionID}", scanHandler.GetSession)
		api.Get("/scan/sessions/{sessionID}/progress", scanHandler.GetProgress)

		api.Get("/folders", folderHandler.ListFolders)
		api.Post("/folders", folderHandler.RegisterFolder)
		api.Get("/folders/{folderID}", folderHandler.GetFolder)
		api.Delete("/folders/{folderID}", folderHandler.DeleteFolder)

		api.Get("/stats", systemHandler.GetStatistics)
		api.Get("/notifications", systemHandler.ListNotifications)
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, logger: logger}
}

// Start runs the HTTP server until the listener stops.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
