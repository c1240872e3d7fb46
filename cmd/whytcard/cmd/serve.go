package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/whytcard/cortex/internal/config"
	"github.com/whytcard/cortex/internal/logging"
)

// newServeCmd creates the serve command, which starts the tool-dispatch
// server over the requested transport. stdio requires exclusive use of
// stdout for protocol framing, so all logging is routed to a file instead
// (see internal/logging.SetupStdioMode).
func newServeCmd() *cobra.Command {
	var transport string
	var debug bool
	var session string
	var workspace string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the cognitive memory tool server",
		Long: `Serve exposes the triple memory stores and the CORTEX engine as
typed tools over the tool-dispatch protocol, for AI coding assistants to
call directly.

It runs entirely locally with zero external dependencies.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport, debug, session, workspace)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport to serve over (stdio)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug-level logging")
	cmd.Flags().StringVar(&session, "session", "", "Resume or start under this session id")
	cmd.Flags().StringVar(&workspace, "workspace", "", "Workspace root (defaults to the current directory's project root)")

	return cmd
}

// runServe wires the full runtime and blocks serving until ctx is
// cancelled. stdout is never written to here: the tool-dispatch protocol
// requires it exclusively for JSON-RPC framing.
func runServe(ctx context.Context, transport string, debug bool, session, workspace string) error {
	if transport == "stdio" {
		if err := verifyStdinForMCP(); err != nil {
			return err
		}
	}

	logCfg := logging.DefaultConfig()
	if debug {
		logCfg = logging.DebugConfig()
	}
	logCfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()

	if workspace == "" {
		root, err := config.FindProjectRoot(".")
		if err != nil {
			root, _ = os.Getwd()
		}
		workspace = root
	}

	rt, err := buildRuntime(ctx, workspace, logger)
	if err != nil {
		return fmt.Errorf("failed to build runtime: %w", err)
	}
	defer func() { _ = rt.Close() }()

	sessionID, err := rt.engine.StartSession(ctx, workspace)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	if session != "" {
		sessionID = session
	}
	logger.Info("session started", "session_id", sessionID, "workspace", workspace)
	defer func() { _ = rt.engine.EndSession(ctx, sessionID) }()

	return rt.server.Serve(ctx, transport)
}

// verifyStdinForMCP checks that stdin is a pipe, not an interactive
// terminal, before starting a stdio transport. Starting the protocol
// against a terminal hangs with no diagnostic, since no client will ever
// write a handshake.
func verifyStdinForMCP() error {
	info, err := os.Stdin.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat stdin: %w", err)
	}
	if (info.Mode() & os.ModeCharDevice) != 0 {
		return fmt.Errorf("stdin is a terminal, not a pipe: the tool server expects a client connected over stdin/stdout, not an interactive shell")
	}
	return nil
}
