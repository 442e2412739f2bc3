package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/laureateLoan/pkg/ledger"
	"github.com/mcclellann/laureateLoan/pkg/metrics"
	"github.com/mcclellann/laureateLoan/pkg/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server adapts the ledger to HTTP.
type Server struct {
	ledger *ledger.Ledger
	logger *logrus.Logger
}

func NewServer(l *ledger.Ledger, logger *logrus.Logger) *Server {
	return &Server{ledger: l, logger: logger}
}

// Routes builds the router. Literal paths are registered before their
// {id} siblings so they win the match.
func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.instrument)

	router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/laureates", s.createLaureateHandler).Methods(http.MethodPost)
	router.HandleFunc("/laureates/{id}", s.getLaureateHandler).Methods(http.MethodGet)
	router.HandleFunc("/laureates/{id}/summary", s.laureateSummaryHandler).Methods(http.MethodGet)
	router.HandleFunc("/laureates/{id}/schedule", s.laureateScheduleHandler).Methods(http.MethodGet)
	router.HandleFunc("/laureates/{id}/payments", s.laureatePaymentsHandler).Methods(http.MethodGet)

	router.HandleFunc("/loans", s.listLoansHandler).Methods(http.MethodGet)
	router.HandleFunc("/loans", s.createLoanHandler).Methods(http.MethodPost)
	router.HandleFunc("/loans/statistics", s.loanStatisticsHandler).Methods(http.MethodGet)
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods(http.MethodGet)
	router.HandleFunc("/loans/{id}", s.updateLoanHandler).Methods(http.MethodPatch)
	router.HandleFunc("/loans/{id}/balance", s.loanBalanceHandler).Methods(http.MethodGet)
	router.HandleFunc("/loans/{id}/schedule", s.regenerateScheduleHandler).Methods(http.MethodPost)

	router.HandleFunc("/payments", s.listPaymentsHandler).Methods(http.MethodGet)
	router.HandleFunc("/payments/overdue", s.overduePaymentsHandler).Methods(http.MethodGet)
	router.HandleFunc("/payments/statistics", s.paymentStatisticsHandler).Methods(http.MethodGet)
	router.HandleFunc("/payments/{id}/mark-paid", s.markPaidHandler).Methods(http.MethodPost)
	router.HandleFunc("/payments/{id}/mark-missed", s.markMissedHandler).Methods(http.MethodPost)
	router.HandleFunc("/payments/{id}/mark-overdue", s.markOverdueHandler).Methods(http.MethodPost)

	return router
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latency per route template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"route":    route,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("Request handled")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case models.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrHistoryLocked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		resp.Field = ve.Field
	}
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		resp.Error = "internal server error"
	}
	writeJSON(w, status, resp)
}

// decodeJSON decodes the request body into v. An empty body is accepted when
// optional is set.
func decodeJSON(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	if err != nil {
		return models.NewValidationError("", "invalid request body: "+err.Error())
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, models.NewValidationError("id", "invalid id")
	}
	return id, nil
}

func queryID(r *http.Request, key string) (uuid.UUID, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, models.NewValidationError(key, "invalid id")
	}
	return id, nil
}

func parseDateField(field, raw string) (time.Time, error) {
	d, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, models.NewValidationError(field, "expected a date formatted YYYY-MM-DD")
	}
	return d, nil
}

// asOf reads the as_of query parameter, defaulting to the ledger's today.
func (s *Server) asOf(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return s.ledger.Today(), nil
	}
	return parseDateField("as_of", raw)
}
