package http

import (
	"net/http"

	"timetravel/internal/auth"
	"timetravel/internal/capsule"
	"timetravel/internal/config"
	"timetravel/internal/http/handler"
	mw "timetravel/internal/http/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

func NewRouter(cfg config.Config, db *gorm.DB, sessions *auth.Sessions, capsules *capsule.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(mw.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	requireAuth := auth.RequireAuth(sessions.JWT)

	ah := &handler.AuthHandler{DB: db, Sessions: sessions}
	r.Post("/auth/register", ah.Register)
	r.Post("/auth/login", ah.Login)
	r.Post("/auth/refresh", ah.Refresh)
	r.Post("/auth/logout", ah.Logout)

	me := &handler.MeHandler{DB: db}
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/me", me.Me)
		r.Post("/me/password", ah.ChangePassword)
	})

	ch := &handler.CapsuleHandler{
		Svc:            capsules,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Location:       cfg.Location,
	}

	r.Route("/capsules", func(r chi.Router) {
		r.Use(requireAuth)

		r.Get("/", ch.List)
		r.Post("/", ch.Create)

		r.Get("/{id}", ch.Get)
		r.Get("/{id}/content", ch.Content)
		r.Delete("/{id}", ch.Delete)
	})

	return r
}
