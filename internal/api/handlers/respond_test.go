package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/aegis/v13/timeline/internal/contracts"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{contracts.Invalid("start_date", "required"), http.StatusBadRequest},
		{contracts.NotFound("snapshot", "u1"), http.StatusNotFound},
		{fmt.Errorf("create: %w", contracts.ErrDuplicateSnapshot), http.StatusConflict},
		{fmt.Errorf("backfill: %w", contracts.ErrConflict), http.StatusConflict},
		{fmt.Errorf("pause: %w", contracts.ErrInvalidState), http.StatusConflict},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}
