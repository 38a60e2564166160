package orchestrator

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
)

// startRequest is the validated wire shape of a `start` HTTP submission.
type startRequest struct {
	Name      string            `json:"name" validate:"required"`
	ID        string            `json:"id" validate:"required"`
	ValueDate time.Time         `json:"value_date" validate:"required"`
	ClientID  string            `json:"client_id"`
	Body      map[string]string `json:"body"`
}

// NewServer builds the HTTP control surface: start/status/cancel/stats,
// CORS-enabled for browser-based operator tooling.
func NewServer(f *Facade) http.Handler {
	validate := validator.New()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Post("/runs", func(w http.ResponseWriter, req *http.Request) {
		var body startRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": string(StatusRejectedInvalid)})
			return
		}
		if err := validate.Struct(body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": string(StatusRejectedInvalid)})
			return
		}

		result, err := f.Start(req.Context(), body.Name, Payload{
			ID: body.ID, ValueDate: body.ValueDate, ClientID: body.ClientID, Body: body.Body,
		})
		status := http.StatusAccepted
		switch result.Status {
		case StatusRejectedInvalid:
			status = http.StatusBadRequest
		case StatusRejectedOverloaded:
			status = http.StatusServiceUnavailable
		case StatusConflict:
			status = http.StatusConflict
		}
		if err != nil && result.Status != StatusRejectedOverloaded {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, map[string]string{"run_id": result.RunID, "status": string(result.Status)})
	})

	r.Get("/runs/{runID}", func(w http.ResponseWriter, req *http.Request) {
		view, st, err := f.Status(req.Context(), chi.URLParam(req, "runID"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
			return
		}
		if st == StatusNotFound {
			writeJSON(w, http.StatusNotFound, map[string]string{"status": string(st)})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"run_id":       view.RunID,
			"state":        view.State,
			"current_step": view.CurrentStep,
			"result":       view.Result,
		})
	})

	r.Post("/runs/{runID}/cancel", func(w http.ResponseWriter, req *http.Request) {
		state, st, err := f.Cancel(req.Context(), chi.URLParam(req, "runID"))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
			return
		}
		status := http.StatusOK
		switch st {
		case StatusNotFound:
			status = http.StatusNotFound
		case StatusConflict:
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]string{"state": string(state), "status": string(st)})
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, f.Stats())
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
