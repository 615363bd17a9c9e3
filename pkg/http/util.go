package http

import (
	"time"

	xutil "Conductor/pkg/util"
)

// ParseAsOf parses an as_of parameter; empty means "not set".
func ParseAsOf(s string) (*time.Time, error) { return xutil.ParseAsOf(s) }
