package config

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Keys of a backend orchestration response.
const (
	KeyShouldProfile                = "shouldProfile"
	KeyPeriodInSeconds              = "periodInSeconds"
	KeyAgentParameters              = "agentParameters"
	KeySamplingIntervalMillis       = "SamplingIntervalInMilliseconds"
	KeyMinimumTimeForReportingMilli = "MinimumTimeForReportingInMilliseconds"
	KeyMaxStackDepth                = "MaxStackDepth"
	KeyMemoryUsageLimitPercent      = "MemoryUsageLimitPercent"
)

// ParseOrchestration extracts the overrides carried by a backend response.
// Missing keys and values that are not integers are left unset.
//
// MemoryUsageLimitPercent sets the CPU limit, following the backend contract.
func ParseOrchestration(response map[string]any, logger zerolog.Logger) Overrides {
	var o Overrides
	if response == nil {
		return o
	}

	if v, ok := response[KeyShouldProfile]; ok {
		if b, ok := v.(bool); ok {
			o.ShouldProfile = &b
		} else {
			logger.Info().Interface("value", v).Str("key", KeyShouldProfile).Msg("Ignoring invalid value")
		}
	}
	if n, ok := intValue(response, KeyPeriodInSeconds, logger); ok {
		o.ReportingInterval = ptr(time.Duration(n) * time.Second)
	}

	params, _ := response[KeyAgentParameters].(map[string]any)
	if params == nil {
		return o
	}
	if n, ok := intValue(params, KeySamplingIntervalMillis, logger); ok {
		o.SamplingInterval = ptr(time.Duration(n) * time.Millisecond)
	}
	if n, ok := intValue(params, KeyMinimumTimeForReportingMilli, logger); ok {
		o.MinimumTimeReporting = ptr(time.Duration(n) * time.Millisecond)
	}
	if n, ok := intValue(params, KeyMaxStackDepth, logger); ok {
		o.MaxStackDepth = ptr(int(n))
	}
	if n, ok := intValue(params, KeyMemoryUsageLimitPercent, logger); ok {
		o.CPULimitPercent = ptr(float64(n))
	}
	return o
}

func intValue(m map[string]any, key string, logger zerolog.Logger) (int64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}

	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(math.Trunc(n)), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i, true
		}
	}

	logger.Info().Interface("value", v).Str("key", key).Msg("Ignoring invalid integer value")
	return 0, false
}
