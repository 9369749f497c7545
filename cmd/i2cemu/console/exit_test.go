package console

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mklimuk/i2cemu"
)

func TestFail(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"nack", i2cemu.ErrNack, ExitRefused},
		{"wrapped busy", fmt.Errorf("could not read: %w", i2cemu.ErrBusBusy), ExitRefused},
		{"other", errors.New("device not found"), 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exit := Fail("transfer failed", tc.err)
			assert.Equal(t, tc.code, exit.ExitCode())
			assert.Contains(t, exit.Error(), "transfer failed: ")
			assert.Contains(t, exit.Error(), tc.err.Error())
		})
	}
}
