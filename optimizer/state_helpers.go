package optimizer

// Common helper functions for optimizer state restoration. Parameter maps
// round-trip through JSON, so numbers may come back as float64 regardless of
// how they were stored.

// extractFloat64Param safely extracts a float parameter from the state map
func extractFloat64Param(params map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := params[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case float32:
			return float64(v)
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
	}
	return defaultValue
}

// extractBoolParam safely extracts a bool parameter from the state map
func extractBoolParam(params map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := params[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return defaultValue
}

// extractInt64Param safely extracts an integer parameter from the state map
func extractInt64Param(params map[string]interface{}, key string, defaultValue int64) int64 {
	if val, ok := params[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return defaultValue
}
