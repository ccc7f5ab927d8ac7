package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/KedarPoul/Anemia-Classification-System/db"
	"github.com/KedarPoul/Anemia-Classification-System/ml"
)

func TestHealthHealthy(t *testing.T) {
	mux := muxWithModel(t, &fakeModel{label: 0}, 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	payload := decodeBody(t, w)
	if payload["status"] != "healthy" {
		t.Fatalf("unexpected status: %v", payload["status"])
	}
	if payload["model_loaded"] != true {
		t.Fatalf("expected model_loaded true, got %v", payload["model_loaded"])
	}
	features := payload["features"].([]interface{})
	if len(features) != 2 || features[1] != "HGB" {
		t.Fatalf("unexpected features: %v", features)
	}
	classes := payload["class_names"].([]interface{})
	if len(classes) != 2 {
		t.Fatalf("unexpected class names: %v", classes)
	}
}

func TestHealthDegraded(t *testing.T) {
	mux := newTestMux(t, ServiceConfig{Fallback: testMetadata()})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	payload := decodeBody(t, w)
	if payload["status"] != "degraded" {
		t.Fatalf("unexpected status: %v", payload["status"])
	}
	if payload["model_loaded"] != false {
		t.Fatalf("expected model_loaded false, got %v", payload["model_loaded"])
	}
	// Fallback metadata still describes the inputs.
	if len(payload["features"].([]interface{})) == 0 {
		t.Fatal("expected fallback features")
	}
}

func TestIndexForm(t *testing.T) {
	mux := muxWithModel(t, &fakeModel{label: 0}, 0)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("unexpected content type: %s", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "HGB") {
		t.Fatal("expected feature name in form")
	}
	if !strings.Contains(body, "12") || !strings.Contains(body, "16") {
		t.Fatal("expected reference range in form")
	}
}

func TestNotFoundReturnsJSON(t *testing.T) {
	mux := muxWithModel(t, &fakeModel{label: 0}, 0)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	payload := decodeBody(t, w)
	message, _ := payload["error"].(string)
	if !strings.Contains(message, "POST /predict") {
		t.Fatalf("expected allowed usage in body, got %v", message)
	}
}

func TestMethodNotAllowedReturnsJSON(t *testing.T) {
	mux := muxWithModel(t, &fakeModel{label: 0}, 0)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/predict"},
		{http.MethodPost, "/health"},
		{http.MethodDelete, "/"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code != http.StatusMethodNotAllowed {
				t.Fatalf("expected 405, got %d", w.Code)
			}
			payload := decodeBody(t, w)
			if payload["error"] != "method not allowed" {
				t.Fatalf("unexpected body: %v", payload)
			}
		})
	}
}

type fakeStore struct {
	saved    []db.PredictionRecord
	queryErr error
}

func (f *fakeStore) SavePrediction(rec db.PredictionRecord) error {
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeStore) RecentPredictions(limit int) ([]db.PredictionRecord, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if limit > len(f.saved) {
		limit = len(f.saved)
	}
	return f.saved[:limit], nil
}

func TestPredictWritesAuditLog(t *testing.T) {
	store := &fakeStore{}
	bundle, err := ml.NewBundle(testMetadata(), &fakeModel{label: 0})
	if err != nil {
		t.Fatalf("build bundle: %v", err)
	}
	mux := newTestMux(t, ServiceConfig{Bundle: bundle, Store: store})

	w := postPredict(mux, `{"Age": 30, "HGB": 9.8}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(store.saved))
	}
	rec := store.saved[0]
	if rec.Prediction == "" {
		t.Fatal("expected prediction label recorded")
	}
	if rec.AbnormalCount != 1 {
		t.Fatalf("expected 1 abnormal value, got %d", rec.AbnormalCount)
	}
	if !strings.Contains(rec.Inputs, "HGB") {
		t.Fatalf("expected inputs recorded, got %s", rec.Inputs)
	}
}

func TestRecentPredictionsEndpoint(t *testing.T) {
	store := &fakeStore{saved: []db.PredictionRecord{
		{ID: 1, Prediction: "No_Anemia"},
	}}
	mux := newTestMux(t, ServiceConfig{Fallback: testMetadata(), Store: store})

	req := httptest.NewRequest(http.MethodGet, "/api/predictions?limit=1", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	payload := decodeBody(t, w)
	records := payload["predictions"].([]interface{})
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}

func TestRecentPredictionsWithoutStore(t *testing.T) {
	mux := newTestMux(t, ServiceConfig{Fallback: testMetadata()})

	req := httptest.NewRequest(http.MethodGet, "/api/predictions", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestRecentPredictionsQueryFailure(t *testing.T) {
	store := &fakeStore{queryErr: errors.New("disk gone")}
	mux := newTestMux(t, ServiceConfig{Fallback: testMetadata(), Store: store})

	req := httptest.NewRequest(http.MethodGet, "/api/predictions", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}
