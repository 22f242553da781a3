package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"duka.app/internal/auth"
	"duka.app/internal/obs"
)

const (
	serviceName = "duka-api"
	// apiPrefix is the namespace whose responses always use the envelope.
	apiPrefix = "/api/"
)

// ReadyProbe reports readiness; a nil DB (in-memory store) is always ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options configures API.
type Options struct {
	Directory auth.Directory
	// Verifier is used by the registration endpoint, which runs before an
	// account exists and is therefore exempt from the gate.
	Verifier auth.Verifier
	Ready    ReadyProbe
	Version  string

	RateLimitRPS   int
	RateLimitBurst int
	MaxBodyBytes   int64
}

// API is the HTTP layer.
type API struct {
	router    *Router
	directory auth.Directory
	verifier  auth.Verifier
	ready     ReadyProbe
	version   string

	ratePerSec int
	rateBurst  int
	maxBody    int64
}

func New(opts Options) *API {
	a := &API{
		router:     NewRouter(),
		directory:  opts.Directory,
		verifier:   opts.Verifier,
		ready:      opts.Ready,
		version:    opts.Version,
		ratePerSec: opts.RateLimitRPS,
		rateBurst:  opts.RateLimitBurst,
		maxBody:    opts.MaxBodyBytes,
	}
	if a.ratePerSec <= 0 {
		a.ratePerSec = 50
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 100
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}

	a.router.HandleExemptFunc("/healthz", a.Healthz)
	a.router.HandleExemptFunc("/readyz", a.Ready)
	a.router.HandleExempt("/metrics", obs.Handler())

	a.router.HandleExemptFunc("/api/test_view/{$}", a.handleTestView)
	a.router.HandleFunc("/api/my_view/{$}", a.handleMyView)
	a.router.HandleExemptFunc("/api/createNewUser/{$}", a.handleCreateNewUser)
	a.router.HandleFunc("/api/adminCreateNewUser/{$}", a.handleAdminCreateNewUser)
	a.router.HandleFunc("/api/getUserDetails/{$}", a.handleGetUserDetails)
	a.router.HandleFunc("/api/getOrganisationDetails/{$}", a.handleGetOrganisationDetails)
	a.router.HandleFunc("/api/createOrganisation/{$}", a.handleCreateOrganisation)
	a.router.HandleFunc("/api/createRoles/{$}", a.handleCreateRoles)
	a.router.HandleFunc("/api/getRoles/{$}", a.handleGetRoles)
	a.router.HandleFunc("/api/adminAdRbacTasks/{$}", a.handleAddRbacTask)
	a.router.HandleFunc("/api/listRbacTasks/{$}", a.handleListRbacTasks)

	a.router.HandleFunc(apiPrefix, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, "not found", "resource not found")
	})
	return a
}

// Router exposes the dispatcher so the gate can consult its exemptions.
func (a *API) Router() *Router { return a.router }

// Handler assembles the middleware chain around the router. The gate runs
// innermost so rejections still get request ids, logs and metrics.
func (a *API) Handler(gate *auth.Gate) http.Handler {
	var h http.Handler = a.router
	if gate != nil {
		h = Authorize(gate)(h)
	}
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = Recover(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
