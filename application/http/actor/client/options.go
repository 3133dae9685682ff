package client

import (
	"http-wrapper/metrics"

	"github.com/google/uuid"
)

type Options struct {
	// Metrics receives run observations. Nil disables them.
	Metrics *metrics.Metrics

	// NewRequestID tags the log lines of one run.
	NewRequestID func() string
}

var DefaultOptions = Options{
	Metrics:      nil,
	NewRequestID: uuid.NewString,
}
