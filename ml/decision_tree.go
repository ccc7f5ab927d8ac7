package ml

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DecisionTree is a pre-trained classification tree serialized as a flat
// node array. Leaves optionally carry the training-sample class counts,
// which is what enables probability estimates.
type DecisionTree struct {
	nodes      []TreeNode
	classCount int
}

type TreeNode struct {
	FeatureIdx  int     `json:"feature_idx"`
	Threshold   float64 `json:"threshold"`
	LeftChild   int     `json:"left_child"`
	RightChild  int     `json:"right_child"`
	ClassLabel  int     `json:"class_label"`
	IsLeaf      bool    `json:"is_leaf"`
	ClassCounts []int   `json:"class_counts,omitempty"`
}

// NewDecisionTree validates the node array against the declared class
// count and returns a ready-to-use tree.
func NewDecisionTree(nodes []TreeNode, classCount int) (*DecisionTree, error) {
	if len(nodes) == 0 {
		return nil, errors.New("decision tree has no nodes")
	}
	if classCount <= 0 {
		return nil, errors.New("class count must be positive")
	}
	for i, node := range nodes {
		if node.IsLeaf {
			if node.ClassLabel < 0 || node.ClassLabel >= classCount {
				return nil, fmt.Errorf("node %d: class label %d out of range", i, node.ClassLabel)
			}
			if len(node.ClassCounts) > 0 && len(node.ClassCounts) != classCount {
				return nil, fmt.Errorf("node %d: expected %d class counts, got %d", i, classCount, len(node.ClassCounts))
			}
			continue
		}
		if node.LeftChild < 0 || node.LeftChild >= len(nodes) ||
			node.RightChild < 0 || node.RightChild >= len(nodes) {
			return nil, fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return &DecisionTree{nodes: nodes, classCount: classCount}, nil
}

// ParseDecisionTree decodes the raw node array of a bundle's model section.
func ParseDecisionTree(raw json.RawMessage, classCount int) (*DecisionTree, error) {
	var nodes []TreeNode
	if err := json.Unmarshal(raw, &nodes); err != nil {
		return nil, fmt.Errorf("decode decision tree nodes: %w", err)
	}
	return NewDecisionTree(nodes, classCount)
}

// Predict walks the tree and returns the class index of the reached leaf.
func (dt *DecisionTree) Predict(features []float64) (int, error) {
	leaf, err := dt.walk(features)
	if err != nil {
		return 0, err
	}
	return leaf.ClassLabel, nil
}

// PredictProba returns the normalized class distribution of the reached
// leaf. Trees without class counts return ErrConfidenceUnsupported.
func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	leaf, err := dt.walk(features)
	if err != nil {
		return nil, err
	}
	if len(leaf.ClassCounts) == 0 {
		return nil, ErrConfidenceUnsupported
	}
	total := 0
	for _, count := range leaf.ClassCounts {
		if count < 0 {
			return nil, errors.New("negative class count")
		}
		total += count
	}
	if total == 0 {
		return nil, errors.New("empty class counts")
	}
	proba := make([]float64, dt.classCount)
	for i, count := range leaf.ClassCounts {
		proba[i] = float64(count) / float64(total)
	}
	return proba, nil
}

// SupportsProbabilities reports whether every leaf carries class counts.
// The bundle loader calls this once to set the confidence capability.
func (dt *DecisionTree) SupportsProbabilities() bool {
	for _, node := range dt.nodes {
		if node.IsLeaf && len(node.ClassCounts) == 0 {
			return false
		}
	}
	return true
}

func (dt *DecisionTree) walk(features []float64) (*TreeNode, error) {
	idx := 0
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := &dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, fmt.Errorf("feature index %d out of range", node.FeatureIdx)
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
	return nil, errors.New("decision tree contains a cycle")
}
