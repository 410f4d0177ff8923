package main

import (
	"net/http"
	"time"

	_ "authorization-server/docs"
	"authorization-server/internal/app"
	"authorization-server/internal/config"
	"authorization-server/internal/handlers"
	"authorization-server/internal/middleware"
	"authorization-server/internal/models"
	"authorization-server/internal/oauth"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// SetupRouter configures and returns the HTTP router with all routes and middleware
func SetupRouter(
	srv *oauth.Server,
	storage *app.Storage,
	cfg *config.Config,
	reg *prometheus.Registry,
	logger *zap.Logger,
) (*mux.Router, error) {
	httpMetrics, err := middleware.NewHTTPMetrics(reg)
	if err != nil {
		return nil, err
	}

	authorizeHandler, err := handlers.NewAuthorizeHandler(srv.Grants, handlers.HeaderAuthenticator{Header: cfg.UserHeader}, cfg.LoginURL, []byte(cfg.ConsentSecret), logger)
	if err != nil {
		return nil, err
	}
	tokenHandler := handlers.NewTokenHandler(srv.Grants, logger)
	introspectionHandler := handlers.NewIntrospectionHandler(srv.Introspection, logger)
	userInfoHandler := handlers.NewUserInfoHandler(srv.UserInfo, logger)
	discoveryHandler := handlers.NewDiscoveryHandler(cfg.BaseURL, srv.Options, logger)
	jwksHandler := handlers.NewJWKSHandler(srv.Keys, logger)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"database": storage.Repo,
		"cache":    storage.Cache,
	}, logger)

	router := mux.NewRouter()

	// Add CORS middleware
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.MetricsMiddleware(httpMetrics))

	// Discovery
	router.HandleFunc("/.well-known/oauth-authorization-server", discoveryHandler.HandleMetadata).Methods("GET", "OPTIONS")
	router.HandleFunc("/.well-known/openid-configuration", discoveryHandler.HandleOIDCConfiguration).Methods("GET", "OPTIONS")

	// OAuth2 endpoints, rate limited per client
	api := router.PathPrefix("/oauth").Subrouter()
	api.Use(middleware.RateLimitMiddleware(storage.Cache, srv.Registry, logger, cfg.RateLimitPerMinute, time.Minute))

	// The consent page is same-origin only, so authorize skips OPTIONS.
	api.HandleFunc("/authorize", authorizeHandler.HandleAuthorize).Methods("GET", "POST")
	api.HandleFunc("/token", tokenHandler.HandleToken).Methods("POST", "OPTIONS")
	api.HandleFunc("/revoke", introspectionHandler.HandleRevoke).Methods("POST", "OPTIONS")
	api.HandleFunc("/introspect", introspectionHandler.HandleIntrospect).Methods("POST", "OPTIONS")
	api.Handle("/userinfo", middleware.BearerAuth(srv.Tokens, logger, models.ScopeOpenID)(http.HandlerFunc(userInfoHandler.HandleUserInfo))).Methods("GET", "POST", "OPTIONS")
	api.HandleFunc("/jwks", jwksHandler.HandleJWKS).Methods("GET", "OPTIONS")

	router.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")

	// Swagger documentation
	router.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	return router, nil
}
