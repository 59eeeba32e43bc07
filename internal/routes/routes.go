package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/giftwise-backend/internal/handlers"
	"github.com/AnshRaj112/giftwise-backend/internal/middleware"
)

// Deps are the handlers and collaborators the route table needs.
type Deps struct {
	Recipients *handlers.RecipientHandler
	Auth       *handlers.AuthHandler
	Sessions   middleware.SessionValidator
	// UploadDir is served at /uploads when pictures are stored locally
	UploadDir string
}

func SetupRoutes(r chi.Router, deps Deps) {
	requireAuth := middleware.RequireAuth(deps.Sessions)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", deps.Auth.Signup)
		r.Post("/signin", deps.Auth.Signin)
		r.Post("/signout", deps.Auth.Signout)
		r.With(requireAuth).Get("/me", deps.Auth.Me)
	})

	r.Route("/api/recipients", func(r chi.Router) {
		r.Use(requireAuth)

		h := deps.Recipients
		r.Post("/", h.Create)
		r.Post("/create", h.Create)
		r.Get("/", h.List)
		r.Get("/list", h.List)
		r.Put("/update/{id}", h.Update)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
		r.Put("/{id}/styles", h.AddStyles)
		r.Post("/{id}/picture", h.SetPicture)
	})

	if deps.UploadDir != "" {
		fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(deps.UploadDir)))
		r.Get("/uploads/*", fs.ServeHTTP)
	}
}
