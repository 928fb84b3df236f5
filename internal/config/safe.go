package config

import (
	"errors"

	"github.com/hostfleet/fleetnet/internal/logger"
)

// SafeLoad wraps Load: invalid keys are logged and dropped rather than
// failing the whole load, so a deployment with one stale or mistyped
// option still starts up with everything else applied.
func SafeLoad(schema *Schema, values map[string]string) (Map, error) {
	m, err := Load(schema, values)
	if err != nil {
		var errs ErrorList
		if !errors.As(err, &errs) {
			return m, err
		}

		for _, e := range errs {
			logger.Warn("Invalid configuration key", logger.Ctx{"key": e.Name, "reason": e.Reason})
		}
	}

	return m, nil
}
