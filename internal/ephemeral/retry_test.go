package ephemeral

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blackwell-systems/localstack-control-plane/internal/errs"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport failure", errs.Wrap(errs.KindRemote, "get", "x", errors.New("connection reset")), true},
		{"deadline under the request", errs.Wrap(errs.KindRemote, "get", "x", context.DeadlineExceeded), true},
		{"unavailable", errs.FromStatus(errs.KindRemote, "get", "x", http.StatusServiceUnavailable, "", true), true},
		{"throttled", errs.FromStatus(errs.KindRemote, "get", "x", http.StatusTooManyRequests, "", true), true},
		{"wrapped unavailable", fmt.Errorf("get: %w", errs.FromStatus(errs.KindRemote, "get", "x", 502, "", true)), true},
		{"unauthorized", errs.FromStatus(errs.KindRemote, "get", "x", http.StatusUnauthorized, "", true), false},
		{"forbidden", errs.FromStatus(errs.KindRemote, "get", "x", http.StatusForbidden, "", true), false},
		{"bad request", errs.FromStatus(errs.KindRemote, "get", "x", http.StatusBadRequest, "", true), false},
		{"missing credential", errs.AuthRequired("get", "x"), false},
		{"provision failed", errs.New(errs.KindProvisionFailed, "create", "x", "boom"), false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}
