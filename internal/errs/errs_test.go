package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same kind", New(KindNotFound, "logs", "x", ""), ErrNotFound, true},
		{"different kind", New(KindSaveFailed, "save", "p", ""), ErrLoadFailed, false},
		{"wrapped", fmt.Errorf("outer: %w", New(KindLaunch, "start", "img", "")), ErrLaunch, true},
		{"auth required is invalid request class", AuthRequired("save", "p"), ErrInvalidRequest, true},
		{"invalid request is not auth required", New(KindInvalidRequest, "state", "", ""), ErrAuthRequired, false},
		{"plain error", errors.New("boom"), ErrRemote, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{
		Kind:       KindSaveFailed,
		Op:         "save",
		Target:     "my-pod",
		StatusCode: 401,
		Detail:     "credential rejected",
	}
	assert.Equal(t, "save my-pod: save failed (status 401): credential rejected", err.Error())

	cause := errors.New("connection refused")
	wrapped := Wrap(KindResetFailed, "reset", "http://localhost:4566", cause)
	assert.Equal(t, "reset http://localhost:4566: reset failed: connection refused", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestFromStatus(t *testing.T) {
	err := FromStatus(KindRemote, "logs", "x", http.StatusNotFound, "", true)
	assert.Equal(t, KindNotFound, err.Kind)
	assert.Equal(t, "not found", err.Detail)

	err = FromStatus(KindLoadFailed, "load", "p", http.StatusNotFound, "", false)
	assert.Equal(t, KindLoadFailed, err.Kind)

	err = FromStatus(KindSaveFailed, "save", "p", http.StatusForbidden, "", false)
	assert.Equal(t, "credential rejected", err.Detail)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindProvisionTimeout, KindOf(fmt.Errorf("x: %w", ErrProvisionTimeout)))
	assert.Equal(t, KindUnknown, KindOf(errors.New("x")))
}

func TestConfigOpf(t *testing.T) {
	err := ConfigOpf("start", "gateway-port", "port %d out of range", 70000)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Equal(t, "start gateway-port: config error: port 70000 out of range", err.Error())
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{name: "short", in: "abc", n: 5, want: "abc"},
		{name: "ascii", in: "abcdef", n: 3, want: "abc..."},
		{name: "cut inside rune", in: "aé", n: 2, want: "a..."},
		{name: "cut inside wide rune", in: "ab日本", n: 4, want: "ab..."},
		{name: "on rune boundary", in: "日本語", n: 3, want: "日..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestFromStatusKeepsUTF8(t *testing.T) {
	body := strings.Repeat("é", 400)
	err := FromStatus(KindRemote, "get", "x", http.StatusBadGateway, body, false)
	assert.True(t, utf8.ValidString(err.Detail))
	assert.True(t, strings.HasSuffix(err.Detail, "..."))
}
