package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/KedarPoul/Anemia-Classification-System/clinical"
	"github.com/KedarPoul/Anemia-Classification-System/db"
	"github.com/KedarPoul/Anemia-Classification-System/monitoring"
)

const availableEndpoints = "GET /, POST /predict, GET /health"

// ModelMetadata echoes the bundle metadata in prediction responses.
type ModelMetadata struct {
	Version         string                `json:"version"`
	FeaturesUsed    []string              `json:"features_used"`
	ReferenceRanges map[string][2]float64 `json:"reference_ranges"`
}

// PredictResponse is the success body of POST /predict.
type PredictResponse struct {
	Prediction       string                    `json:"prediction"`
	ModelMetadata    ModelMetadata             `json:"model_metadata"`
	ConfidenceScores map[string]float64        `json:"confidence_scores,omitempty"`
	Warning          string                    `json:"warning,omitempty"`
	AbnormalValues   map[string]clinical.Alert `json:"abnormal_values,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string   `json:"status"`
	ModelLoaded bool     `json:"model_loaded"`
	Features    []string `json:"features"`
	ClassNames  []string `json:"class_names"`
}

type errorResponse struct {
	Error             string   `json:"error"`
	Details           string   `json:"details,omitempty"`
	MissingParameters []string `json:"missing_parameters,omitempty"`
	Parameter         string   `json:"parameter,omitempty"`
}

// RegisterRoutes attaches all service endpoints to the mux. The bare "/"
// pattern catches everything else so unknown paths and wrong methods get
// JSON bodies instead of the mux defaults.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /predict", s.handlePredict)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/predictions", s.handleRecentPredictions)
	if s.hub != nil {
		mux.HandleFunc("GET /api/ws/predictions", s.hub.HandleWebSocket)
	}
	mux.HandleFunc("/", s.handleFallback)
}

func (s *Service) handlePredict(w http.ResponseWriter, r *http.Request) {
	if !s.ModelLoaded() {
		respondError(w, http.StatusInternalServerError, errorResponse{
			Error:   "model not loaded",
			Details: "the classification model failed to load; predictions are unavailable",
		})
		return
	}

	var payload map[string]interface{}
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&payload); err != nil || payload == nil {
		respondError(w, http.StatusBadRequest, errorResponse{
			Error: "request body must be a JSON object",
		})
		return
	}

	values, alerts, err := s.validator.Validate(payload)
	if err != nil {
		var missing *clinical.MissingParametersError
		if errors.As(err, &missing) {
			respondError(w, http.StatusBadRequest, errorResponse{
				Error:             "missing parameters",
				MissingParameters: missing.Params,
			})
			return
		}
		var invalid *clinical.InvalidValueError
		if errors.As(err, &invalid) {
			respondError(w, http.StatusBadRequest, errorResponse{
				Error:     "invalid numeric value",
				Parameter: invalid.Param,
			})
			return
		}
		respondError(w, http.StatusBadRequest, errorResponse{
			Error:   "validation failed",
			Details: err.Error(),
		})
		return
	}

	out, confidenceWarn, err := s.invoke(values)
	if err != nil {
		s.logger.Error("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, errorResponse{
			Error:   "prediction failed",
			Details: err.Error(),
		})
		return
	}

	response := PredictResponse{
		Prediction: s.bundle.ClassName(out.index),
		ModelMetadata: ModelMetadata{
			Version:         s.meta.Version,
			FeaturesUsed:    s.meta.Features,
			ReferenceRanges: s.meta.ReferenceRanges,
		},
	}
	if out.proba != nil {
		scores := make(map[string]float64, len(s.meta.ClassNames))
		for i, name := range s.meta.ClassNames {
			scores[name] = out.proba[i]
		}
		response.ConfidenceScores = scores
	}
	if confidenceWarn {
		response.Warning = "Confidence estimates unavailable"
	}
	if len(alerts) > 0 {
		response.Warning = "Abnormal parameters detected"
		response.AbnormalValues = alerts
	}

	s.recordPrediction(r, payload, response, alerts)
	respondJSON(w, http.StatusOK, response)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if !s.ModelLoaded() {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:      status,
		ModelLoaded: s.ModelLoaded(),
		Features:    s.meta.Features,
		ClassNames:  s.meta.ClassNames,
	})
}

func (s *Service) handleRecentPredictions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, errorResponse{
			Error: "prediction log not configured",
		})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := s.store.RecentPredictions(limit)
	if err != nil {
		s.logger.Error("query prediction log failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, errorResponse{
			Error:   "failed to read prediction log",
			Details: err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": records,
		"limit":       limit,
	})
}

// handleFallback serves JSON 404/405 bodies for everything the typed
// patterns did not match.
func (s *Service) handleFallback(w http.ResponseWriter, r *http.Request) {
	known := map[string]bool{
		"/": true, "/predict": true, "/health": true, "/api/predictions": true,
	}
	if s.hub != nil {
		known["/api/ws/predictions"] = true
	}
	if known[r.URL.Path] {
		respondError(w, http.StatusMethodNotAllowed, errorResponse{
			Error:   "method not allowed",
			Details: "available endpoints: " + availableEndpoints,
		})
		return
	}
	respondError(w, http.StatusNotFound, errorResponse{
		Error: "endpoint not found. Available endpoints: " + availableEndpoints,
	})
}

// recordPrediction writes the audit entry and feeds the WebSocket hub.
// Both are best-effort.
func (s *Service) recordPrediction(r *http.Request, payload map[string]interface{}, response PredictResponse, alerts map[string]clinical.Alert) {
	confidence := 0.0
	if response.ConfidenceScores != nil {
		confidence = response.ConfidenceScores[response.Prediction]
	}

	if s.store != nil {
		inputs, err := json.Marshal(payload)
		if err != nil {
			inputs = []byte("{}")
		}
		rec := db.PredictionRecord{
			Inputs:        string(inputs),
			Prediction:    response.Prediction,
			Confidence:    confidence,
			AbnormalCount: len(alerts),
			CreatedAt:     time.Now().UTC(),
		}
		if err := s.store.SavePrediction(rec); err != nil {
			s.logger.Warn("audit log write failed", zap.Error(err))
		}
	}

	if s.hub != nil {
		abnormal := make([]string, 0, len(alerts))
		for _, name := range s.meta.Features {
			if _, ok := alerts[name]; ok {
				abnormal = append(abnormal, name)
			}
		}
		s.hub.BroadcastPrediction(monitoring.PredictionEvent{
			RequestID:  GetRequestID(r.Context()),
			Prediction: response.Prediction,
			Confidence: confidence,
			Abnormal:   abnormal,
			Timestamp:  time.Now().UTC(),
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, body errorResponse) {
	respondJSON(w, status, body)
}
