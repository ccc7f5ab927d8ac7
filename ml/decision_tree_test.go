package ml

import (
	"math"
	"testing"
)

// twoClassTree splits on feature 0 at 12.0: below goes to class 1,
// above to class 0.
func twoClassTree(t *testing.T, withCounts bool) *DecisionTree {
	t.Helper()
	left := TreeNode{FeatureIdx: -1, LeftChild: -1, RightChild: -1, ClassLabel: 1, IsLeaf: true}
	right := TreeNode{FeatureIdx: -1, LeftChild: -1, RightChild: -1, ClassLabel: 0, IsLeaf: true}
	if withCounts {
		left.ClassCounts = []int{2, 8}
		right.ClassCounts = []int{9, 1}
	}
	nodes := []TreeNode{
		{FeatureIdx: 0, Threshold: 12.0, LeftChild: 1, RightChild: 2},
		left,
		right,
	}
	tree, err := NewDecisionTree(nodes, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tree
}

func TestDecisionTreePredict(t *testing.T) {
	tree := twoClassTree(t, true)

	tests := []struct {
		name     string
		features []float64
		want     int
	}{
		{"below threshold", []float64{10.5}, 1},
		{"at threshold", []float64{12.0}, 1},
		{"above threshold", []float64{14.2}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tree.Predict(tt.features)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected class %d, got %d", tt.want, got)
			}
		})
	}
}

func TestDecisionTreePredictProba(t *testing.T) {
	tree := twoClassTree(t, true)

	proba, err := tree.PredictProba([]float64{10.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proba) != 2 {
		t.Fatalf("expected 2 probabilities, got %d", len(proba))
	}
	if math.Abs(proba[0]-0.2) > 1e-9 || math.Abs(proba[1]-0.8) > 1e-9 {
		t.Fatalf("unexpected distribution: %v", proba)
	}
	sum := proba[0] + proba[1]
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("probabilities do not sum to 1: %v", sum)
	}
}

func TestDecisionTreeWithoutCounts(t *testing.T) {
	tree := twoClassTree(t, false)

	if tree.SupportsProbabilities() {
		t.Fatal("expected no probability support without class counts")
	}
	if _, err := tree.PredictProba([]float64{10.0}); err != ErrConfidenceUnsupported {
		t.Fatalf("expected ErrConfidenceUnsupported, got %v", err)
	}
	// Hard labels still work.
	if _, err := tree.Predict([]float64{10.0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecisionTreeMissingFeature(t *testing.T) {
	tree := twoClassTree(t, true)
	if _, err := tree.Predict(nil); err == nil {
		t.Fatal("expected error for empty feature vector")
	}
}

func TestNewDecisionTreeRejectsBadNodes(t *testing.T) {
	tests := []struct {
		name       string
		nodes      []TreeNode
		classCount int
	}{
		{"empty", nil, 2},
		{"label out of range", []TreeNode{{IsLeaf: true, ClassLabel: 5}}, 2},
		{"child out of range", []TreeNode{{FeatureIdx: 0, LeftChild: 7, RightChild: 1}, {IsLeaf: true}}, 2},
		{"count size mismatch", []TreeNode{{IsLeaf: true, ClassCounts: []int{1}}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDecisionTree(tt.nodes, tt.classCount); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDecisionTreeCycleDetected(t *testing.T) {
	nodes := []TreeNode{
		{FeatureIdx: 0, Threshold: 1, LeftChild: 1, RightChild: 1},
		{FeatureIdx: 0, Threshold: 1, LeftChild: 0, RightChild: 0},
	}
	tree, err := NewDecisionTree(nodes, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tree.Predict([]float64{0.5}); err == nil {
		t.Fatal("expected cycle error")
	}
}
