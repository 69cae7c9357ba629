package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mind-engage/mindengage-assess/internal/admin"
	api "github.com/mind-engage/mindengage-assess/internal/api/http"
	"github.com/mind-engage/mindengage-assess/internal/assessment"
	auth "github.com/mind-engage/mindengage-assess/internal/auth/middleware"
	"github.com/mind-engage/mindengage-assess/internal/catalog"
	"github.com/mind-engage/mindengage-assess/internal/config"
	"github.com/mind-engage/mindengage-assess/internal/content"
	"github.com/mind-engage/mindengage-assess/internal/enrollment"
	"github.com/mind-engage/mindengage-assess/internal/flashcard"
	"github.com/mind-engage/mindengage-assess/internal/importer"
	"github.com/mind-engage/mindengage-assess/internal/qbank"
	"github.com/mind-engage/mindengage-assess/internal/rbac"
	"github.com/mind-engage/mindengage-assess/internal/storage"
	"github.com/mind-engage/mindengage-assess/internal/submission"
	syncx "github.com/mind-engage/mindengage-assess/internal/sync"
	"github.com/mind-engage/mindengage-assess/internal/users"
)

// app holds every store and service the gateway serves.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	db      *sql.DB
	authSvc *auth.AuthService
	checker *rbac.Checker
	blobs   storage.BlobStore

	users       *users.Store
	catalog     *catalog.Store
	qbank       *qbank.SQLStore
	assessments *assessment.SQLStore
	submissions *submission.Service
	enrollments *enrollment.Store
	flashcards  *flashcard.Store
	importer    *importer.Importer
	content     *content.Store
	events      *syncx.EventRepo
	admin       *admin.Registry
}

func newApp(cfg config.Config, log *slog.Logger, h *sql.DB, blobs storage.BlobStore) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     log,
		db:      h,
		authSvc: auth.NewAuthService(cfg.AuthSecret, cfg.TokenTTL),
		checker: rbac.NewChecker(nil),
		blobs:   blobs,
	}
	a.events = syncx.NewEventRepo(h)
	a.users = users.NewStore(h)
	a.catalog = catalog.NewStore(h)
	a.qbank = qbank.NewSQLStore(h)
	a.assessments = assessment.NewSQLStore(h)
	a.submissions = submission.NewService(h, a.assessments,
		submission.WithEventLog(a.events), submission.WithLogger(log))
	a.enrollments = enrollment.NewStore(h, a.events, log)
	a.flashcards = flashcard.NewStore(h, a.qbank)
	a.importer = importer.New(a.qbank, a.flashcards, a.events, log)
	a.content = content.NewStore(h)

	reg, err := a.adminRegistry()
	if err != nil {
		return nil, err
	}
	a.admin = reg
	return a, nil
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := a.cfg.CORSOriginsOffline
	if a.cfg.Mode == config.ModeOnline {
		origins = a.cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.db.PingContext(ctx); err != nil {
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(pub chi.Router) {
		// Public surface.
		if a.cfg.EnableLocalAuth {
			pub.Post("/auth/login", auth.LoginHandler(a.authSvc, a.users))
		}
		pub.Get("/banners/active", api.ActiveBannersHandler(a.content))
		pub.Post("/contact", api.CreateContactHandler(a.content))
		pub.Get("/collections", api.ListCollectionsHandler(a.content, true))
		pub.Get("/pages/{kind}", api.ListPagesHandler(a.content, true))
		pub.Get("/pages/{kind}/latest", api.LatestPageHandler(a.content))

		// Protected API (JWT → role in context → RBAC)
		pub.Group(func(pr chi.Router) {
			pr.Use(auth.JWTMiddleware(a.authSvc))
			if a.cfg.RoleFromDB {
				pr.Use(auth.AttachRoleFromDB(a.users, a.cfg.Mode == config.ModeOffline, a.log))
			}
			a.mountProtected(pr)
		})
	})
	return r
}

func (a *app) mountProtected(pr chi.Router) {
	c := a.checker
	viewAny := func(perm string) func(http.Handler) http.Handler {
		return c.RequireAny(perm+":view-own", perm+":view-all")
	}

	pr.Route("/assets", func(ar chi.Router) { api.MountAssets(ar, a.blobs) })

	// Users
	pr.With(c.Require("users:list")).Get("/users", api.ListUsersHandler(a.users))
	pr.With(c.Require("users:bulk_upsert")).Post("/users/bulk", api.BulkUpsertUsersHandler(a.users))
	pr.With(c.Require("user:change_password")).Post("/users/change-password", api.ChangePasswordHandler(a.users))

	// Catalog
	pr.With(c.Require("catalog:view")).Get("/courses", api.ListCoursesHandler(a.catalog))
	pr.With(c.Require("catalog:view")).Get("/courses/{id}", api.GetCourseHandler(a.catalog))
	pr.With(c.Require("catalog:manage")).Post("/courses", api.CreateCourseHandler(a.catalog))
	pr.With(c.Require("catalog:manage")).Delete("/courses/{id}", api.DeleteCourseHandler(a.catalog))
	pr.With(c.Require("catalog:view")).Get("/categories", api.ListCategoriesHandler(a.catalog))
	pr.With(c.Require("catalog:manage")).Post("/categories", api.CreateCategoryHandler(a.catalog))

	// Products and their hierarchy
	pr.With(c.Require("product:view")).Get("/products", api.ListProductsHandler(a.qbank))
	pr.With(c.Require("product:view")).Get("/products/{id}", api.GetProductHandler(a.qbank))
	pr.With(c.Require("product:manage")).Post("/products", api.CreateProductHandler(a.qbank))
	pr.With(c.Require("product:manage")).Put("/products/{id}", api.UpdateProductHandler(a.qbank))
	pr.With(c.Require("product:manage")).Delete("/products/{id}", api.DeleteProductHandler(a.qbank))
	pr.With(c.Require("product:enroll")).Post("/products/{id}/enroll", api.EnrollHandler(a.enrollments))
	pr.With(c.Require("product:view")).Get("/products/{id}/chapters", api.ListChaptersHandler(a.qbank))
	pr.With(c.Require("product:manage")).Post("/products/{id}/chapters", api.CreateChapterHandler(a.qbank))
	pr.With(c.Require("product:view")).Get("/chapters/{id}/topics", api.ListTopicsHandler(a.qbank))
	pr.With(c.Require("product:manage")).Post("/chapters/{id}/topics", api.CreateTopicHandler(a.qbank))
	pr.With(c.Require("question:view")).Get("/topics/{id}/questions", api.ListQuestionsHandler(a.qbank))
	pr.With(c.Require("question:manage")).Post("/topics/{id}/questions", api.CreateQuestionHandler(a.qbank))
	pr.With(c.Require("flashcard:view")).Get("/topics/{id}/flashcards", api.ListFlashcardsHandler(a.flashcards))
	pr.With(c.Require("flashcard:manage")).Post("/topics/{id}/flashcards", api.CreateFlashcardHandler(a.flashcards))
	pr.With(c.Require("import:run")).Post("/topics/{id}/import/questions", api.ImportQuestionsHandler(a.importer))
	pr.With(c.Require("import:run")).Post("/topics/{id}/import/flashcards", api.ImportFlashcardsHandler(a.importer))
	pr.With(c.Require("import:run")).Get("/templates/questions.xlsx", api.QuestionTemplateHandler())
	pr.With(c.Require("import:run")).Get("/templates/flashcards.xlsx", api.FlashcardTemplateHandler())

	// Questions
	pr.Route("/questions", func(qr chi.Router) {
		qr.With(c.Require("question:view")).Get("/", api.ListQuestionsHandler(a.qbank))
		qr.With(c.Require("question:manage")).Post("/", api.CreateQuestionHandler(a.qbank))
		qr.With(c.Require("question:view")).Get("/stats", api.QuestionStatsHandler(a.qbank))
		qr.With(c.Require("question:view")).Get("/{id}", api.GetQuestionHandler(a.qbank))
		qr.With(c.Require("question:manage")).Put("/{id}", api.UpdateQuestionHandler(a.qbank))
		qr.With(c.Require("question:manage")).Delete("/{id}", api.DeleteQuestionHandler(a.qbank))
		qr.With(c.Require("asset:upload")).Post("/{id}/media", api.UploadQuestionMediaHandler(a.qbank, a.blobs))
	})

	// Assessments
	pr.Route("/assessments", func(ar chi.Router) {
		ar.With(c.Require("assessment:view")).Get("/", api.ListAssessmentsHandler(a.assessments))
		ar.With(c.Require("assessment:manage")).Post("/", api.CreateAssessmentHandler(a.assessments))
		ar.With(c.Require("assessment:view")).Get("/available", api.AvailableAssessmentsHandler(a.assessments))
		ar.With(c.Require("assessment:view")).Get("/{id}", api.GetAssessmentHandler(a.assessments))
		ar.With(c.Require("assessment:manage")).Put("/{id}", api.UpdateAssessmentHandler(a.assessments))
		ar.With(c.Require("assessment:manage")).Delete("/{id}", api.DeleteAssessmentHandler(a.assessments))
		ar.With(c.Require("assessment:view")).Get("/{id}/questions", api.AssessmentQuestionsHandler(a.assessments))
		ar.With(c.Require("assessment:manage")).Post("/{id}/questions", api.AddAssessmentQuestionHandler(a.assessments))
		ar.With(c.Require("assessment:manage")).Delete("/{id}/questions/{questionID}", api.RemoveAssessmentQuestionHandler(a.assessments))
		ar.With(c.Require("assessment:stats")).Get("/{id}/stats", api.AssessmentStatsHandler(a.assessments))
		ar.With(c.Require("submission:view-all")).Get("/{id}/submissions", api.AssessmentSubmissionsHandler(a.submissions))
		ar.With(c.Require("submission:create")).Post("/{id}/start", api.StartAssessmentHandler(a.submissions))
	})

	// Submissions
	pr.Route("/submissions", func(sr chi.Router) {
		sr.With(viewAny("submission")).Get("/", api.ListSubmissionsHandler(a.submissions))
		sr.With(viewAny("submission")).Get("/{id}", api.GetSubmissionHandler(a.submissions))
		sr.With(c.Require("submission:submit")).Post("/{id}/submit", api.SubmitHandler(a.submissions))
		sr.With(c.Require("submission:grade")).Post("/{id}/grade", api.GradeHandler(a.submissions))
	})

	// Enrollments
	pr.Route("/enrollments", func(er chi.Router) {
		er.With(viewAny("enrollment")).Get("/", api.ListEnrollmentsHandler(a.enrollments))
		er.With(viewAny("enrollment")).Get("/status", api.EnrollmentStatusHandler(a.enrollments))
		er.With(viewAny("enrollment")).Get("/{id}", api.GetEnrollmentHandler(a.enrollments))
		er.With(c.Require("enrollment:manage")).Patch("/{id}", api.SaveEnrollmentHandler(a.enrollments))
		er.With(c.Require("enrollment:manage")).Delete("/{id}", api.DeleteEnrollmentHandler(a.enrollments))
		er.With(c.Require("enrollment:progress")).Post("/{id}/progress", api.UpdateProgressHandler(a.enrollments))
		er.With(c.Require("enrollment:manage")).Post("/{id}/complete", api.CompleteEnrollmentHandler(a.enrollments))
		er.With(viewAny("enrollment")).Get("/{id}/certificate", api.CertificateHandler(a.enrollments))
	})

	// Flashcards
	pr.Route("/flashcards", func(fr chi.Router) {
		fr.With(c.Require("flashcard:view")).Get("/", api.ListFlashcardsHandler(a.flashcards))
		fr.With(c.Require("flashcard:manage")).Post("/", api.CreateFlashcardHandler(a.flashcards))
		fr.With(c.Require("flashcard:review")).Get("/progress", api.FlashcardProgressHandler(a.flashcards))
		fr.With(c.Require("flashcard:view")).Get("/stats", api.FlashcardStatsHandler(a.flashcards))
		fr.With(c.Require("flashcard:view")).Get("/{id}", api.GetFlashcardHandler(a.flashcards))
		fr.With(c.Require("flashcard:manage")).Put("/{id}", api.UpdateFlashcardHandler(a.flashcards))
		fr.With(c.Require("flashcard:manage")).Delete("/{id}", api.DeleteFlashcardHandler(a.flashcards))
		fr.With(c.Require("flashcard:review")).Post("/{id}/review", api.ReviewFlashcardHandler(a.flashcards))
	})

	// Site content
	pr.Group(func(cr chi.Router) {
		cr.Use(c.Require("content:manage"))
		cr.Get("/banners", api.ListBannersHandler(a.content))
		cr.Post("/banners", api.CreateBannerHandler(a.content))
		cr.Put("/banners/{id}", api.UpdateBannerHandler(a.content))
		cr.Delete("/banners/{id}", api.DeleteBannerHandler(a.content))
		cr.Get("/contact", api.ListContactsHandler(a.content))
		cr.Get("/contact/stats", api.ContactStatsHandler(a.content))
		cr.Post("/contact/{id}/read", api.MarkContactReadHandler(a.content))
		cr.Get("/collections/all", api.ListCollectionsHandler(a.content, false))
		cr.Post("/collections", api.CreateCollectionHandler(a.content))
		cr.Delete("/collections/{id}", api.DeleteCollectionHandler(a.content))
		cr.Get("/pages/{kind}/all", api.ListPagesHandler(a.content, false))
		cr.Post("/pages/{kind}", api.CreatePageHandler(a.content))
		cr.Put("/pages/{kind}/{id}", api.UpdatePageHandler(a.content))
		cr.Delete("/pages/{kind}/{id}", api.DeletePageHandler(a.content))
	})

	pr.With(c.Require("events:view")).Get("/events", api.EventsHandler(a.events))
	pr.With(c.Require("admin:view")).Mount("/admin", a.admin.Routes())
}
