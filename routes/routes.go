package routes

import (
	"net/http"

	"l3v3l_server/controllers"
	"l3v3l_server/middleware"
	"l3v3l_server/services"

	"github.com/gorilla/mux"
)

// Services are the domain services the HTTP API is built on.
type Services struct {
	PII         *services.PIIService
	Queue       *services.QueueService
	Preferences *services.PreferencesService
	Lists       *services.ListService
	Profile     *services.ProfileService
	Photos      *services.PhotoService
}

// RegisterRoutes sets up the public routes for the application
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", controllers.HealthCheckHandler).Methods("GET")
}

// NewRouter builds the full router. Everything under /api requires a bearer
// token; limiter may be nil.
func NewRouter(svc Services, auth *middleware.Authenticator, limiter *middleware.RateLimiter) *mux.Router {
	r := mux.NewRouter()
	RegisterRoutes(r)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware)

	var limit mux.MiddlewareFunc
	if limiter != nil {
		limit = limiter.Middleware
	}
	RegisterPIIRoutes(api, svc.PII, limit)
	RegisterNotificationRoutes(api, svc.Queue, svc.Preferences)
	RegisterListRoutes(api, svc.Lists)
	RegisterProfileRoutes(api, svc.Profile)
	if svc.Photos != nil {
		RegisterS3Routes(api, svc.Photos)
	}

	r.NotFoundHandler = http.HandlerFunc(controllers.NotFoundHandler)
	return r
}
