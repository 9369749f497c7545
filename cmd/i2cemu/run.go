package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/mklimuk/i2cemu/cmd/i2cemu/console"
	"github.com/mklimuk/i2cemu/hw"
)

var runCmd = cli.Command{
	Name:  "run",
	Usage: "run the emulator with an interactive bus shell",
	Flags: []cli.Flag{
		hardwareFlag,
		&cli.BoolFlag{
			Name:  "headless",
			Usage: "run without the shell until interrupted",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Fail("configuration error", err)
		}
		r, err := newRig(c.String("hardware"), cfg)
		if err != nil {
			return console.Fail("board initialization error", err)
		}
		defer r.Close()
		emu, err := newEmulator(cfg, r)
		if err != nil {
			return console.Fail("emulator initialization error", err)
		}
		console.PInfof(console.PictoChip, "emulator up at %s, %s board", console.Address(fmt.Sprintf("%#x", cfg.Bus.BaseAddress)), c.String("hardware"))

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		var tasks []func(ctx context.Context) error
		if r.resetRequest != nil {
			tasks = append(tasks, func(ctx context.Context) error {
				return hw.WatchResetRequest(ctx, r.resetRequest, func(ctx context.Context) {
					cause, err := emu.HostReset(ctx)
					if err != nil {
						slog.Error("host reset failed", "err", err)
						return
					}
					slog.Info("host reset serviced", "cause", cause)
				})
			})
		}
		if !c.Bool("headless") {
			sh := newShell(emu, r.virtual, os.Stdout)
			tasks = append(tasks, func(ctx context.Context) error {
				return runShell(ctx, sh, os.Stdin)
			})
		}
		err = emu.Run(ctx, tasks...)
		if err != nil && !errors.Is(err, errQuit) {
			return console.Fail("emulator stopped", err)
		}
		console.PInfof(console.PictoStop, "emulator stopped")
		return nil
	},
}

// runShell reads commands from a terminal with line editing, or line by
// line from a pipe.
func runShell(ctx context.Context, sh *shell, in *os.File) error {
	if term.IsTerminal(int(in.Fd())) {
		return interactive(ctx, sh)
	}
	return batch(ctx, sh, in)
}

func interactive(ctx context.Context, sh *shell) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "i2cemu> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("could not open terminal: %w", err)
	}
	defer func() { _ = rl.Close() }()
	go func() {
		<-ctx.Done()
		_ = rl.Close()
	}()
	sh.out = rl.Stdout()
	sh.printf("type help for the command list\n")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return errQuit
		}
		if err != nil {
			return err
		}
		if err := sh.exec(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return err
			}
			sh.printf("%s", console.Format(err))
		}
	}
}

func batch(ctx context.Context, sh *shell, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sh.exec(ctx, sc.Text()); err != nil {
			if errors.Is(err, errQuit) {
				return err
			}
			sh.printf("%s", console.Format(err))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return errQuit
}
