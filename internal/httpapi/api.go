package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Hammeadmin/polished-momentum-sub000/internal/obs"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/scheduling"
	"github.com/Hammeadmin/polished-momentum-sub000/internal/stream"
)

const serviceName = "crmcal-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe: проверка готовности (ping БД, если она подключена).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Option configures the API.
type Option func(*API)

func WithTokenTTL(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.tokenTTL = d
		}
	}
}

func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		if perSecond > 0 && burst > 0 {
			a.ratePerSec, a.rateBurst = perSecond, burst
		}
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

func WithCORSOrigins(origins []string) Option {
	return func(a *API) { a.corsOrigins = origins }
}

// WithLocation sets the zone used for date-only query parameters.
func WithLocation(loc *time.Location) Option {
	return func(a *API) {
		if loc != nil {
			a.location = loc
		}
	}
}

// WithTokenIssuing enables POST /v1/auth/token. It is meant for development
// setups without an identity provider.
func WithTokenIssuing(enabled bool) Option {
	return func(a *API) { a.issueTokens = enabled }
}

// API is the HTTP layer over the scheduling coordinator.
type API struct {
	mux        *http.ServeMux
	readyProbe readinessChecker
	version    string
	coord      *scheduling.Coordinator
	stream     *stream.Stream

	tokenTTL    time.Duration
	issueTokens bool
	ratePerSec  float64
	rateBurst   int
	maxBody     int64
	corsOrigins []string
	location    *time.Location
}

func New(rp readinessChecker, version string, coord *scheduling.Coordinator, st *stream.Stream, opts ...Option) *API {
	a := &API{
		mux:         http.NewServeMux(),
		readyProbe:  rp,
		version:     version,
		coord:       coord,
		stream:      st,
		tokenTTL:    12 * time.Hour,
		issueTokens: false,
		ratePerSec:  20,
		rateBurst:   40,
		maxBody:     1 << 20,
		location:    time.UTC,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("GET /v1/events", a.listEvents)
	a.mux.HandleFunc("GET /v1/events.ics", a.exportEvents)
	a.mux.HandleFunc("POST /v1/events", a.createEvent)
	a.mux.HandleFunc("POST /v1/events/recurring", a.createRecurring)
	a.mux.HandleFunc("GET /v1/events/{id}", a.getEvent)
	a.mux.HandleFunc("PATCH /v1/events/{id}", a.updateEvent)
	a.mux.HandleFunc("DELETE /v1/events/{id}", a.deleteEvent)
	a.mux.HandleFunc("POST /v1/events/{id}/move", a.moveEvent)
	a.mux.HandleFunc("POST /v1/conflicts/check", a.checkConflicts)
	a.mux.HandleFunc("GET /v1/stream", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the full middleware chain around the router.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = a.withAuth(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(a.corsOrigins)(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	}
	if a.stream != nil {
		info["stream_subscribers"] = a.stream.Subscribers()
	}
	writeJSON(w, http.StatusOK, info)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
