package log

import (
	"github.com/cockroachdb/errors"
)

// marshalStack is installed as zerolog.ErrorStackMarshaler. It emits the
// stack recorded by cockroachdb/errors at the point the error was created.
func marshalStack(err error) interface{} {
	stacktrace := extractStacktrace(err)
	if stacktrace == "" {
		return nil
	}
	return stacktrace
}

func extractStacktrace(err error) string {
	safeDetails := errors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}
