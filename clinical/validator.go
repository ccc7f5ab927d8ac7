// Package clinical validates prediction inputs against the model's
// required feature set and clinical reference ranges.
package clinical

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Alert flags a value outside its clinical reference range. Alerts are
// advisory only and never block a prediction.
type Alert struct {
	Value       float64    `json:"value"`
	NormalRange [2]float64 `json:"normal_range"`
	Unit        string     `json:"unit"`
}

// MissingParametersError lists the required features absent from a request.
type MissingParametersError struct {
	Params []string
}

func (e *MissingParametersError) Error() string {
	return fmt.Sprintf("missing parameters: %s", strings.Join(e.Params, ", "))
}

// InvalidValueError marks a required feature whose value could not be
// converted to a number.
type InvalidValueError struct {
	Param string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid numeric value for %s", e.Param)
}

// Validator checks request payloads against a fixed feature order and
// the per-feature reference ranges. It is immutable after construction.
type Validator struct {
	features []string
	ranges   map[string][2]float64
	units    map[string]string
}

func NewValidator(features []string, ranges map[string][2]float64, units map[string]string) *Validator {
	return &Validator{features: features, ranges: ranges, units: units}
}

// Validate confirms all required features are present and numeric and
// returns the values in feature order, plus range alerts for any value
// outside its declared [low, high] bounds. Extra keys are ignored.
func (v *Validator) Validate(payload map[string]interface{}) ([]float64, map[string]Alert, error) {
	var missing []string
	for _, name := range v.features {
		if _, ok := payload[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, nil, &MissingParametersError{Params: missing}
	}

	values := make([]float64, len(v.features))
	for i, name := range v.features {
		value, err := coerceFloat(payload[name])
		if err != nil {
			return nil, nil, &InvalidValueError{Param: name}
		}
		values[i] = value
	}

	alerts := make(map[string]Alert)
	for i, name := range v.features {
		bounds, ok := v.ranges[name]
		if !ok {
			continue
		}
		if values[i] < bounds[0] || values[i] > bounds[1] {
			alerts[name] = Alert{
				Value:       values[i],
				NormalRange: bounds,
				Unit:        v.units[name],
			}
		}
	}
	return values, alerts, nil
}

// coerceFloat accepts JSON numbers and numeric strings.
func coerceFloat(raw interface{}) (float64, error) {
	switch value := raw.(type) {
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return 0, fmt.Errorf("non-finite number")
		}
		return value, nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, err
		}
		if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return 0, fmt.Errorf("non-finite number")
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
}
