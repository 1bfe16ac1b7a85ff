package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("start must be before end: %w", ErrValidation), "validation"},
		{fmt.Errorf("cabin 3: %w", ErrConflict), "conflict"},
		{ErrUnauthorized, "unauthorized"},
		{fmt.Errorf("booking 9: %w", ErrNotFound), "not_found"},
		{fmt.Errorf("wrap: %w", fmt.Errorf("version 2: %w", ErrConcurrency)), "concurrency"},
		{errors.New("disk full"), "internal"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err))
	}
}
