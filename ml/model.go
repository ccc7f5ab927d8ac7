package ml

// Classifier is the minimal contract a loaded model satisfies.
type Classifier interface {
	Predict(features []float64) (int, error)
}

// ProbabilityEstimator is implemented by models that can produce a
// per-class probability distribution in addition to a hard label.
// Support is determined once at bundle load time, never per request.
type ProbabilityEstimator interface {
	PredictProba(features []float64) ([]float64, error)
}
