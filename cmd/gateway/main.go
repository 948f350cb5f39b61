package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/scanscore/omr-backend/internal/api/http"
	"github.com/scanscore/omr-backend/internal/audit"
	"github.com/scanscore/omr-backend/internal/auth"
	authmw "github.com/scanscore/omr-backend/internal/auth/middleware"
	"github.com/scanscore/omr-backend/internal/config"
	"github.com/scanscore/omr-backend/internal/db"
	"github.com/scanscore/omr-backend/internal/omr"
	"github.com/scanscore/omr-backend/internal/rbac"
	"github.com/scanscore/omr-backend/internal/storage"
	"github.com/scanscore/omr-backend/internal/vision"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	if err := auth.EnsureAdmin(ctx, dbh, cfg.AdminUser, cfg.AdminPassHash); err != nil {
		log.Fatalf("seed admin: %v", err)
	}

	store := omr.NewSQLStore(dbh, cfg.DBDriver)
	recorder := audit.NewSQLRecorder(dbh)

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	seed := cfg.VisionSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	pipeline := vision.NewStubPipeline(seed)
	scoreOpts := []omr.Option{omr.WithAmbiguityThreshold(cfg.AmbiguityThreshold)}

	authSvc := authmw.NewAuthService(cfg.AuthSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", authmw.LoginHandler(authSvc, dbh))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(authSvc))

		// Answer keys: admin writes, everyone reads
		pr.With(rbac.Require("key:create")).Post("/keys", api.CreateKeyHandler(store))
		pr.With(rbac.Require("key:view")).Get("/keys", api.ListKeysHandler(store))
		pr.With(rbac.Require("key:view")).Get("/keys/{keyID}", api.GetKeyHandler(store))
		pr.With(rbac.Require("key:update")).Put("/keys/{keyID}", api.UpdateKeyHandler(store))
		pr.With(rbac.Require("key:delete")).Delete("/keys/{keyID}", api.DeleteKeyHandler(store))

		// Sheet flow
		pr.With(rbac.Require("sheet:upload")).Post("/sheets", api.UploadSheetHandler(store, bs))
		pr.With(rbac.Require("sheet:view")).Get("/sheets", api.ListSheetsHandler(store))
		pr.With(rbac.Require("sheet:view")).Get("/sheets/{sheetID}", api.GetSheetHandler(store))
		pr.With(rbac.Require("sheet:view")).Get("/sheets/{sheetID}/image", api.GetSheetImageHandler(store, bs))
		pr.With(rbac.Require("sheet:process")).
			Post("/sheets/{sheetID}/process", api.ProcessSheetHandler(store, bs, pipeline, scoreOpts...))
		pr.With(rbac.Require("sheet:review")).Post("/sheets/{sheetID}/review", api.ReviewSheetHandler(store))
		pr.With(rbac.Require("sheet:view")).Get("/sheets/{sheetID}/audit", api.SheetAuditHandler(dbh))

		// Dashboard
		pr.With(rbac.Require("result:view")).Get("/results", api.ListResultsHandler(store))
		pr.With(rbac.Require("stats:view")).Get("/stats", api.StatsHandler(store, cfg.TrendDays))
		pr.With(rbac.Require("export:create")).Get("/export.csv", api.ExportCSVHandler(store, recorder))

		// Users (admin)
		pr.With(rbac.Require("users:create")).Post("/users", api.CreateUserHandler(dbh))
		pr.With(rbac.Require("users:list")).Get("/users", api.ListUsersHandler(dbh))
		pr.With(rbac.Require("user:change_password")).Post("/users/change-password", api.ChangePasswordHandler(dbh))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
