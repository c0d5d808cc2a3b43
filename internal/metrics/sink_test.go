package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        error
		want       string
	}{
		// --- success codes ---
		{"200 OK", 200, nil, StatusClass2xx},
		{"204 No Content", 204, nil, StatusClass2xx},
		{"299 boundary", 299, nil, StatusClass2xx},

		// --- client errors ---
		{"400 Bad Request", 400, nil, StatusClass4xx},
		{"404 Not Found", 404, nil, StatusClass4xx},
		{"499 boundary", 499, nil, StatusClass4xx},

		// --- server errors ---
		{"500 Internal Server Error", 500, nil, StatusClass5xx},
		{"503 Service Unavailable", 503, nil, StatusClass5xx},

		// --- unclassified codes ---
		{"302 redirect", 302, nil, StatusClassOtherError},
		{"100 continue", 100, nil, StatusClassOtherError},

		// --- timeout errors ---
		{"context timeout", 0, errors.New("context deadline exceeded"), StatusClassTimeout},
		{"timeout in message", 0, errors.New("operation timeout"), StatusClassTimeout},
		{"timeout uppercase", 0, errors.New("Timeout exceeded"), StatusClassTimeout},

		// --- connection errors ---
		{"connection refused", 0, errors.New("connection refused"), StatusClassConnectionError},
		{"no such host", 0, errors.New("no such host"), StatusClassConnectionError},
		{"dial error", 0, errors.New("dial tcp 127.0.0.1:80: connect: refused"), StatusClassConnectionError},

		// --- other errors ---
		{"generic error", 0, errors.New("unknown error"), StatusClassOtherError},
		{"error takes precedence over code", 200, errors.New("connection refused"), StatusClassConnectionError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.statusCode, tt.err))
		})
	}
}
