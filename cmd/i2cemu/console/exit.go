package console

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cemu"
)

// ExitRefused is the exit code of a transfer the target NACKed or a bus that
// stayed busy.
const ExitRefused = 2

func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

// Fail turns a failed operation into an exit error.
func Fail(what string, err error) cli.ExitCoder {
	code := 1
	if errors.Is(err, i2cemu.ErrNack) || errors.Is(err, i2cemu.ErrBusBusy) {
		code = ExitRefused
	}
	return cli.Exit(fmt.Sprintf("%s: %s", what, Red(err)), code)
}
