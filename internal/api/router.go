package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vikasavnish/stockmemo/internal/datactx"
	"github.com/vikasavnish/stockmemo/internal/handlers"
	"github.com/vikasavnish/stockmemo/internal/middleware"
	"github.com/vikasavnish/stockmemo/internal/migration"
	"github.com/vikasavnish/stockmemo/internal/monitoring"
	"github.com/vikasavnish/stockmemo/internal/services"
	"github.com/vikasavnish/stockmemo/internal/websocket"
)

// Deps are the components the router wires into handlers
type Deps struct {
	Auth      services.AuthService
	Users     services.UserService
	JWTSecret []byte
	Sessions  handlers.Sessions
	Prices    datactx.PriceLookup
	Remote    migration.Remote
	Hub       *websocket.Hub
	Metrics   *monitoring.Metrics
	Limiter   *middleware.RateLimiter
	Log       *zap.SugaredLogger

	// Storage serves uploaded files under StoragePrefix when set
	Storage       http.Handler
	StoragePrefix string

	// Ping backs the health check
	Ping func(ctx context.Context) error
}

// instrument labels request metrics with the matched route template
func instrument(m *monitoring.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := "unknown"
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					name = tmpl
				}
			}
			m.Instrument(name, next).ServeHTTP(w, r)
		})
	}
}

// SetupRouter configures all routes and returns the router
func SetupRouter(deps Deps) *mux.Router {
	router := mux.NewRouter()
	router.Use(instrument(deps.Metrics))
	if deps.Limiter != nil {
		router.Use(deps.Limiter.RateLimit)
	}

	// Add health check endpoint
	router.HandleFunc("/api/health", HealthHandler(deps.Ping)).Methods("GET")
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics.MetricsHandler()).Methods("GET")
	}

	// WebSocket route; browsers pass the token as a query parameter
	if deps.Hub != nil {
		router.Handle("/ws", middleware.AuthMiddleware(deps.JWTSecret)(http.HandlerFunc(deps.Hub.HandleWebSocket)))
	}

	if deps.Storage != nil && deps.StoragePrefix != "" {
		router.PathPrefix(deps.StoragePrefix + "/").Handler(deps.Storage).Methods("GET")
	}

	// Public endpoints (no authentication required)
	handlers.NewAuthHandler(deps.Auth).RegisterRoutes(router)

	authRouter := router.PathPrefix("/api").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(deps.JWTSecret))

	handlers.NewUserHandler(deps.Users).RegisterRoutes(authRouter)
	handlers.NewDataHandler(deps.Sessions).RegisterRoutes(authRouter)
	handlers.NewPriceHandler(deps.Sessions, deps.Prices).RegisterRoutes(authRouter)
	handlers.NewMigrationHandler(deps.Sessions, deps.Remote, deps.Metrics, deps.Log).RegisterRoutes(authRouter)

	return router
}
