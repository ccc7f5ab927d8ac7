// Package http exposes the classification model over a JSON API.
package http

import (
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/KedarPoul/Anemia-Classification-System/clinical"
	"github.com/KedarPoul/Anemia-Classification-System/db"
	"github.com/KedarPoul/Anemia-Classification-System/ml"
	"github.com/KedarPoul/Anemia-Classification-System/monitoring"
)

// PredictionStore is the audit log consumed by the service. Writes are
// best-effort; a failure is logged and never fails the request.
type PredictionStore interface {
	SavePrediction(rec db.PredictionRecord) error
	RecentPredictions(limit int) ([]db.PredictionRecord, error)
}

// ServiceConfig wires the service dependencies. Bundle may be nil, in
// which case the service runs degraded: health and form endpoints answer
// using Fallback metadata and predictions fail with 500.
type ServiceConfig struct {
	Bundle    *ml.Bundle
	Fallback  ml.Metadata
	Store     PredictionStore
	Hub       *monitoring.Hub
	Logger    *zap.Logger
	CacheSize int
}

// Service holds the immutable per-process state shared by all handlers.
type Service struct {
	bundle    *ml.Bundle
	meta      ml.Metadata
	validator *clinical.Validator
	store     PredictionStore
	hub       *monitoring.Hub
	cache     *lru.Cache[string, modelOutput]
	logger    *zap.Logger
}

// modelOutput memoizes one classifier invocation. proba is nil when the
// model has no probability support.
type modelOutput struct {
	index int
	proba []float64
}

func NewService(cfg ServiceConfig) (*Service, error) {
	meta := cfg.Fallback
	if cfg.Bundle != nil {
		meta = cfg.Bundle.Metadata()
	}
	if len(meta.Features) == 0 {
		meta = ml.FallbackMetadata()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	service := &Service{
		bundle:    cfg.Bundle,
		meta:      meta,
		validator: clinical.NewValidator(meta.Features, meta.ReferenceRanges, meta.Units),
		store:     cfg.Store,
		hub:       cfg.Hub,
		logger:    logger,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, modelOutput](cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		service.cache = cache
	}
	return service, nil
}

// ModelLoaded reports whether a usable bundle is present.
func (s *Service) ModelLoaded() bool { return s.bundle != nil }

// invoke runs the classifier on an ordered feature vector, memoizing the
// result. The returned confidenceWarn flag is set when the model should
// have produced probabilities but failed to.
func (s *Service) invoke(values []float64) (out modelOutput, confidenceWarn bool, err error) {
	if s.bundle == nil {
		return modelOutput{}, false, ml.ErrModelUnavailable
	}

	key := cacheKey(values)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached, false, nil
		}
	}

	idx, err := s.bundle.Predict(values)
	if err != nil {
		return modelOutput{}, false, fmt.Errorf("prediction failed: %w", err)
	}
	out = modelOutput{index: idx}

	if s.bundle.HasConfidence() {
		proba, probaErr := s.bundle.PredictProba(values)
		if probaErr != nil {
			if !errors.Is(probaErr, ml.ErrConfidenceUnsupported) {
				s.logger.Warn("probability estimation failed", zap.Error(probaErr))
				// Do not cache: the label is fine but confidence may
				// recover on a later call.
				return out, true, nil
			}
		} else {
			out.proba = ml.ClipProbabilities(proba)
		}
	}

	if s.cache != nil {
		s.cache.Add(key, out)
	}
	return out, false, nil
}

func cacheKey(values []float64) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte('|')
		}
		fmt.Fprintf(&b, "%g", v)
	}
	return b.String()
}
