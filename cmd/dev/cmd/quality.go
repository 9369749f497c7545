package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Test()
			if err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func LintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Run linting",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Lint()
			if err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Run integration testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := test.Integ()
			if err != nil {
				return fmt.Errorf("failed to run integration testing: %w", err)
			}
			return nil
		},
	}
	return cmd
}

// SmokeCmd runs every Lua script under scripts/smoke against an in-process
// emulator.
func SmokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run the emulator smoke scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cmd.Flags().GetString("dir")
			if err != nil {
				return fmt.Errorf("could not get dir flag: %w", err)
			}
			scripts, err := filepath.Glob(filepath.Join(dir, "*.lua"))
			if err != nil {
				return fmt.Errorf("could not list scripts: %w", err)
			}
			if len(scripts) == 0 {
				return fmt.Errorf("no scripts in %s", dir)
			}
			for _, script := range scripts {
				slog.Info("running smoke script", "script", script)
				run := exec.CommandContext(cmd.Context(), "go", "run", "./cmd/i2cemu", "script", "--adapter", "emulator", script)
				run.Stdout = os.Stdout
				run.Stderr = os.Stderr
				if err := run.Run(); err != nil {
					return fmt.Errorf("smoke script %s failed: %w", script, err)
				}
			}
			slog.Info("smoke scripts passed", "count", len(scripts))
			return nil
		},
	}
	cmd.Flags().String("dir", "scripts/smoke", "directory holding the smoke scripts")
	return cmd
}
