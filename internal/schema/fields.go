package schema

import (
	"fmt"

	"scoreflow/internal/types"
)

// Field extraction and validation helpers. Every helper checks in a fixed
// order: presence, then type, then value constraint. Failures are appended
// to the accumulator; helpers never panic.

// stringField extracts a required non-empty string field.
func stringField(rec map[string]any, field, source string, errs *[]string) (string, bool) {
	raw, ok := rec[field]
	if !ok {
		*errs = append(*errs, fmt.Sprintf("field '%s' not found in %s", field, source))
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		*errs = append(*errs, fmt.Sprintf("field '%s' has invalid type in %s: expected string, got %T", field, source, raw))
		return "", false
	}
	if s == "" {
		*errs = append(*errs, fmt.Sprintf("field '%s' is empty string in %s: non-empty constraint violated", field, source))
		return "", false
	}
	return s, true
}

// intField extracts a required integer field within [min, max].
// JSON decoding yields float64 for numbers; integral floats are accepted.
func intField(rec map[string]any, field, source string, min, max int, errs *[]string) (int, bool) {
	raw, ok := rec[field]
	if !ok {
		*errs = append(*errs, fmt.Sprintf("field '%s' not found in %s", field, source))
		return 0, false
	}
	var v int
	switch n := raw.(type) {
	case int:
		v = n
	case int64:
		v = int(n)
	case float64:
		if n != float64(int(n)) {
			*errs = append(*errs, fmt.Sprintf("field '%s' has invalid type in %s: expected integer, got %T", field, source, raw))
			return 0, false
		}
		v = int(n)
	default:
		*errs = append(*errs, fmt.Sprintf("field '%s' has invalid type in %s: expected integer, got %T", field, source, raw))
		return 0, false
	}
	if v < min || v > max {
		*errs = append(*errs, fmt.Sprintf("field '%s' has invalid value in %s: %d not in range [%d, %d]", field, source, v, min, max))
		return 0, false
	}
	return v, true
}

// optionalIntField extracts an optional non-negative integer. Absent fields
// produce a warning and default to zero; present-but-invalid is an error.
func optionalIntField(rec map[string]any, field, source string, errs, warns *[]string) (int, bool) {
	if _, ok := rec[field]; !ok {
		*warns = append(*warns, fmt.Sprintf("field '%s' missing in %s: defaulting to 0", field, source))
		return 0, true
	}
	return intField(rec, field, source, 0, int(^uint(0)>>1), errs)
}

// metadataField extracts an optional metadata mapping, warning when absent.
func metadataField(rec map[string]any, source string, errs, warns *[]string) (map[string]any, bool) {
	raw, ok := rec["metadata"]
	if !ok {
		*warns = append(*warns, fmt.Sprintf("field 'metadata' missing in %s: defaulting to empty mapping", source))
		return map[string]any{}, true
	}
	m, ok := raw.(map[string]any)
	if !ok {
		*errs = append(*errs, fmt.Sprintf("field 'metadata' has invalid type in %s: expected mapping, got %T", source, raw))
		return nil, false
	}
	return m, true
}

// patternsField extracts an optional patterns sequence, warning when absent.
func patternsField(rec map[string]any, source string, errs, warns *[]string) ([]types.Pattern, bool) {
	raw, ok := rec["patterns"]
	if !ok {
		*warns = append(*warns, fmt.Sprintf("field 'patterns' missing in %s: defaulting to empty sequence", source))
		return []types.Pattern{}, true
	}
	list, ok := raw.([]any)
	if !ok {
		*errs = append(*errs, fmt.Sprintf("field 'patterns' has invalid type in %s: expected sequence, got %T", source, raw))
		return nil, false
	}
	patterns := make([]types.Pattern, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			*errs = append(*errs, fmt.Sprintf("pattern at index %d in %s has invalid type: expected mapping, got %T", i, source, item))
			return nil, false
		}
		p := types.Pattern{}
		if v, ok := m["pattern_id"].(string); ok {
			p.PatternID = v
		}
		if v, ok := m["policy_area_id"].(string); ok {
			p.PolicyAreaID = v
		}
		if v, ok := m["expression"].(string); ok {
			p.Expression = v
		}
		if v, ok := m["metadata"].(map[string]any); ok {
			p.Metadata = v
		}
		patterns = append(patterns, p)
	}
	return patterns, true
}

// signalRequirementsField extracts an optional signal-name -> minimum-strength
// mapping, warning when absent.
func signalRequirementsField(rec map[string]any, source string, errs, warns *[]string) (map[string]float64, bool) {
	raw, ok := rec["signal_requirements"]
	if !ok || raw == nil {
		*warns = append(*warns, fmt.Sprintf("field 'signal_requirements' missing in %s: defaulting to empty mapping", source))
		return map[string]float64{}, true
	}
	m, ok := raw.(map[string]any)
	if !ok {
		*errs = append(*errs, fmt.Sprintf("field 'signal_requirements' has invalid type in %s: expected mapping, got %T", source, raw))
		return nil, false
	}
	reqs := make(map[string]float64, len(m))
	for name, strength := range m {
		switch s := strength.(type) {
		case float64:
			reqs[name] = s
		case int:
			reqs[name] = float64(s)
		case int64:
			reqs[name] = float64(s)
		default:
			*errs = append(*errs, fmt.Sprintf("signal requirement '%s' in %s has invalid strength type: expected number, got %T", name, source, strength))
			return nil, false
		}
	}
	return reqs, true
}

// outputSchemaField extracts an optional shape-typed expected-output schema.
// A sequence input yields ShapeSequence, a mapping ShapeMapping; absent
// yields ShapeAbsent with a warning.
func outputSchemaField(rec map[string]any, field, source string, errs, warns *[]string) (types.OutputSchema, bool) {
	raw, ok := rec[field]
	if !ok || raw == nil {
		*warns = append(*warns, fmt.Sprintf("field '%s' missing in %s: treating schema as absent", field, source))
		return types.OutputSchema{Shape: types.ShapeAbsent}, true
	}
	switch v := raw.(type) {
	case []any:
		elems := make([]types.ElementSpec, 0, len(v))
		for i, item := range v {
			spec, ok := elementSpec(item)
			if !ok {
				*errs = append(*errs, fmt.Sprintf("element at index %d of '%s' in %s has invalid shape", i, field, source))
				return types.OutputSchema{}, false
			}
			elems = append(elems, spec)
		}
		return types.OutputSchema{Shape: types.ShapeSequence, Sequence: elems}, true
	case map[string]any:
		mapping := make(map[string]types.ElementSpec, len(v))
		for key, item := range v {
			spec, ok := elementSpec(item)
			if !ok {
				*errs = append(*errs, fmt.Sprintf("element '%s' of '%s' in %s has invalid shape", key, field, source))
				return types.OutputSchema{}, false
			}
			mapping[key] = spec
		}
		return types.OutputSchema{Shape: types.ShapeMapping, Mapping: mapping}, true
	default:
		*errs = append(*errs, fmt.Sprintf("field '%s' has invalid type in %s: expected sequence or mapping, got %T", field, source, raw))
		return types.OutputSchema{}, false
	}
}

func elementSpec(item any) (types.ElementSpec, bool) {
	m, ok := item.(map[string]any)
	if !ok {
		return types.ElementSpec{}, false
	}
	spec := types.ElementSpec{}
	if v, ok := m["type"].(string); ok {
		spec.Type = v
	}
	if v, ok := m["required"].(bool); ok {
		spec.Required = v
	}
	switch v := m["minimum"].(type) {
	case float64:
		spec.Minimum = v
	case int:
		spec.Minimum = float64(v)
	}
	return spec, true
}
