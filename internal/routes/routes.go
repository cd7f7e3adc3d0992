package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stanstork/claimflow/internal/handlers"
)

// NewRouter sets up the API routes
func NewRouter(resolution *handlers.ResolutionHandler, claims *handlers.ClaimHandler) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Leader resolution, authorized by the team's resolution token
	router.HandleFunc("/api/team/resolve-info", resolution.ResolveInfo).Methods(http.MethodGet)
	router.HandleFunc("/api/team/resolve", resolution.SubmitResolution).Methods(http.MethodPost)

	// Supervisor closure, authorized by the claim id
	router.HandleFunc("/api/supervisor/claim/{claimId}", resolution.SupervisorClaim).Methods(http.MethodGet)
	router.HandleFunc("/api/supervisor/close", resolution.Close).Methods(http.MethodPost)

	// Read-only claim views
	router.HandleFunc("/api/claims/{id}", claims.GetClaim).Methods(http.MethodGet)
	router.HandleFunc("/api/users/{userID}/claims", claims.ListUserClaims).Methods(http.MethodGet)

	return router
}
