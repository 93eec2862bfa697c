package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/avstrong/pension/internal/booking"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.LogErrorf("Could not encode response: %v", err.Error())
	}
}

// writeError maps domain errors to responses and reports whether err was handled.
func (s *Server) writeError(w http.ResponseWriter, err error, action string) bool {
	if err == nil {
		return false
	}

	if inputErr := booking.IsInputError(err); inputErr != nil {
		s.writeJSON(w, http.StatusBadRequest, inputErr.Fields())

		return true
	}

	if availabilityErr := booking.IsAvailabilityError(err); availabilityErr != nil {
		s.writeJSON(w, http.StatusPreconditionFailed, availabilityErr.Verdict())

		return true
	}

	s.l.LogErrorf("Could not %s: %v", action, err.Error())
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

	return true
}

func decode[T any](w http.ResponseWriter, r *http.Request) (*T, bool) {
	var input T

	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)

		return nil, false
	}

	return &input, true
}

func (s *Server) quoteHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[booking.Request](w, r)
	if !ok {
		return
	}

	quote, err := s.bManager.Quote(r.Context(), *req)
	if s.writeError(w, err, "build a quote") {
		return
	}

	s.writeJSON(w, http.StatusOK, quote)
}

func (s *Server) availabilityHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := decode[booking.Request](w, r)
	if !ok {
		return
	}

	verdict, err := s.bManager.CheckAvailability(r.Context(), *req)
	if s.writeError(w, err, "check availability") {
		return
	}

	s.writeJSON(w, http.StatusOK, verdict)
}

func (s *Server) createReservationHandler(w http.ResponseWriter, r *http.Request) {
	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		http.Error(w, "Idempotency-Key header is missing", http.StatusBadRequest)

		return
	}

	input, ok := decode[booking.BookInput](w, r)
	if !ok {
		return
	}

	ctx := booking.NewContextWithIdempotencyKey(r.Context(), idempotencyKey)

	out, err := s.bManager.CreateReservation(ctx, input)
	if s.writeError(w, err, "create a reservation") {
		return
	}

	s.writeJSON(w, http.StatusCreated, out)
}

func (s *Server) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addRoutes(r *http.ServeMux) {
	wrap := func(h http.HandlerFunc) http.Handler {
		return s.applyMiddlewares(h, s.rateLimitMiddleware(), s.loggerMiddleware(), s.recoverMiddleware())
	}

	r.Handle("POST /api/quotes/v1", wrap(s.quoteHandler))
	r.Handle("POST /api/availability/v1", wrap(s.availabilityHandler))
	r.Handle("POST /api/reservations/v1", wrap(s.createReservationHandler))
	r.Handle(
		fmt.Sprintf("GET %s", s.conf.LivenessEndpoint),
		s.applyMiddlewares(http.HandlerFunc(s.livenessHandler), s.loggerMiddleware(), s.recoverMiddleware()),
	)
}
