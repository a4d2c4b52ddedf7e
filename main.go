// Command pomodorotteux tracks who is present in a Twitch chat during pomodoro sessions
// and credits a tomato to every present viewer when a pomodoro ends.
//
// Subcommands:
//   - run: joins the channel, greets viewers as they speak, sweeps idle viewers and
//     awards a tomato every TOMATO_INTERVAL. Optionally serves /healthz, /status and
//     /metrics on HTTP_ADDR.
//   - config init: writes the credential file read by run.
//
// Process settings come from the environment (optionally from a local .env file).
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/onnwee/pomodorotteux/config"
	"github.com/onnwee/pomodorotteux/errs"
	"github.com/onnwee/pomodorotteux/telemetry"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
	exitAuth    = 3
)

var version = "dev"

// app is the state shared by subcommands once the root pre-run has loaded it.
type app struct {
	rt  *config.Runtime
	log *slog.Logger
	out io.Writer
}

func main() {
	// Load .env file if present (local dev convenience only)
	_ = godotenv.Load(".env")

	code, err := run(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pomodorotteux:", err)
	}
	os.Exit(code)
}

func run(args []string, out io.Writer) (int, error) {
	cmd := newRootCmd(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return exitCode(err), err
}

// exitCode maps an error class to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errs.ErrAuthentication):
		return exitAuth
	case errors.Is(err, errs.ErrConfiguration):
		return exitConfig
	default:
		return exitRuntime
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "pomodorotteux",
		Short:         "Twitch chat presence tracker for pomodoro streams",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			rt, err := config.LoadRuntime()
			if err != nil {
				return err
			}
			a.rt = rt
			a.log = telemetry.NewLogger(rt.LogLevel, rt.LogFormat, out)
			slog.SetDefault(a.log)
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(out)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errs.Configuration("parse flags", err)
	})

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newConfigCmd(a))
	return root
}
