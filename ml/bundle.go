package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Metadata describes the model artifact: the ordered feature set it was
// trained on, the ordered class labels, and the clinical reference ranges
// used for advisory validation.
type Metadata struct {
	Version         string                `json:"version"`
	Features        []string              `json:"features"`
	ClassNames      []string              `json:"class_names"`
	ReferenceRanges map[string][2]float64 `json:"reference_ranges"`
	Units           map[string]string     `json:"units,omitempty"`
}

func (m Metadata) validate() error {
	if len(m.Features) == 0 {
		return errors.New("metadata has no features")
	}
	if len(m.ClassNames) == 0 {
		return errors.New("metadata has no class names")
	}
	for name, bounds := range m.ReferenceRanges {
		if bounds[0] > bounds[1] {
			return fmt.Errorf("reference range for %s is inverted", name)
		}
	}
	return nil
}

// Bundle is the immutable pairing of a predictor and its metadata,
// constructed once at startup and shared read-only by all requests.
type Bundle struct {
	meta       Metadata
	classifier Classifier
	estimator  ProbabilityEstimator
}

// NewBundle wraps a predictor with its metadata. Probability support is
// resolved here, once: the model must implement ProbabilityEstimator and,
// if it exposes a SupportsProbabilities probe, answer true.
func NewBundle(meta Metadata, model Classifier) (*Bundle, error) {
	if model == nil {
		return nil, errors.New("nil model")
	}
	if err := meta.validate(); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}
	bundle := &Bundle{meta: meta, classifier: model}
	if est, ok := model.(ProbabilityEstimator); ok {
		bundle.estimator = est
		if probe, ok := model.(interface{ SupportsProbabilities() bool }); ok && !probe.SupportsProbabilities() {
			bundle.estimator = nil
		}
	}
	return bundle, nil
}

type bundleFile struct {
	Model struct {
		Type  string          `json:"type"`
		Nodes json.RawMessage `json:"nodes"`
	} `json:"model"`
	Metadata Metadata `json:"metadata"`
}

// LoadBundle reads a serialized model bundle from disk.
func LoadBundle(path string) (*Bundle, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model bundle: %w", err)
	}
	var file bundleFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("decode model bundle: %w", err)
	}
	if err := file.Metadata.validate(); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}

	var model Classifier
	switch file.Model.Type {
	case "decision_tree":
		tree, err := ParseDecisionTree(file.Model.Nodes, len(file.Metadata.ClassNames))
		if err != nil {
			return nil, err
		}
		model = tree
	default:
		return nil, fmt.Errorf("unsupported model type %q", file.Model.Type)
	}
	return NewBundle(file.Metadata, model)
}

// Metadata returns the bundle metadata.
func (b *Bundle) Metadata() Metadata { return b.meta }

// HasConfidence reports whether the model can produce per-class
// probability estimates.
func (b *Bundle) HasConfidence() bool { return b.estimator != nil }

// Predict invokes the classifier on metadata-ordered feature values and
// returns the class index.
func (b *Bundle) Predict(features []float64) (int, error) {
	idx, err := b.classifier.Predict(features)
	if err != nil {
		return 0, err
	}
	if idx < 0 || idx >= len(b.meta.ClassNames) {
		return 0, fmt.Errorf("predicted class index %d out of range", idx)
	}
	return idx, nil
}

// PredictProba returns the per-class probability distribution.
func (b *Bundle) PredictProba(features []float64) ([]float64, error) {
	if b.estimator == nil {
		return nil, ErrConfidenceUnsupported
	}
	proba, err := b.estimator.PredictProba(features)
	if err != nil {
		return nil, err
	}
	if len(proba) != len(b.meta.ClassNames) {
		return nil, fmt.Errorf("expected %d probabilities, got %d", len(b.meta.ClassNames), len(proba))
	}
	return proba, nil
}

// ClassName maps a class index to its label.
func (b *Bundle) ClassName(idx int) string { return b.meta.ClassNames[idx] }

// probabilityEpsilon keeps confidence scores away from exact 0 and 1.
const probabilityEpsilon = 1e-12

// ClipProbabilities clamps each probability into
// [probabilityEpsilon, 1-probabilityEpsilon].
func ClipProbabilities(proba []float64) []float64 {
	clipped := make([]float64, len(proba))
	for i, p := range proba {
		switch {
		case p < probabilityEpsilon:
			clipped[i] = probabilityEpsilon
		case p > 1-probabilityEpsilon:
			clipped[i] = 1 - probabilityEpsilon
		default:
			clipped[i] = p
		}
	}
	return clipped
}

// FallbackMetadata is served by health and form endpoints when the model
// bundle failed to load, so the service can still describe its inputs.
func FallbackMetadata() Metadata {
	return Metadata{
		Version:    "1.0",
		Features:   []string{"Age", "Sex", "RBC", "PCV", "MCV", "MCHC", "RDW", "HGB"},
		ClassNames: []string{"No_Anemia", "ACD_Moderate", "ACD_Severe", "Moderate_iron_deficiency_anemia"},
		ReferenceRanges: map[string][2]float64{
			"HGB":  {12.0, 16.0},
			"RBC":  {4.0, 5.5},
			"PCV":  {37.0, 47.0},
			"MCV":  {80.0, 100.0},
			"MCHC": {32.0, 36.0},
			"RDW":  {11.5, 14.5},
		},
		Units: map[string]string{
			"HGB":  "g/dL",
			"RBC":  "million/µL",
			"PCV":  "%",
			"MCV":  "fL",
			"MCHC": "g/dL",
			"RDW":  "%",
		},
	}
}
