// Package toolserver is the tool facade: it exposes the triple memory and
// CORTEX engine as typed MCP tools, and composes them into the ACID
// pipeline (analyze/prepare/code/verify/document/manage).
package toolserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/whytcard/cortex/internal/cortex"
	"github.com/whytcard/cortex/internal/memory"
	"github.com/whytcard/cortex/internal/store"
	"github.com/whytcard/cortex/pkg/version"
)

// Server is the MCP tool server. It bridges AI coding assistants to the
// triple memory stores and the CORTEX engine over the tool-dispatch
// protocol described by the runtime's external interfaces.
type Server struct {
	mcp *mcp.Server

	memory *memory.TripleMemory
	store  store.Store
	engine *cortex.Engine

	logger *slog.Logger
}

// NewServer builds a Server over already-constructed triple memory, the
// shared storage engine handle (used directly by tools that need
// document/tag operations the memory layer doesn't wrap, such as
// memory_list and manage_tags), and the CORTEX engine.
func NewServer(tm *memory.TripleMemory, st store.Store, engine *cortex.Engine, log *slog.Logger) (*Server, error) {
	if tm == nil {
		return nil, errors.New("triple memory is required")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if engine == nil {
		return nil, errors.New("cortex engine is required")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Server{memory: tm, store: st, engine: engine, logger: log}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "whytcard",
		Version: version.Version,
	}, nil)

	s.registerMemoryTools()
	s.registerKnowledgeTools()
	s.registerCortexTools()
	s.registerPipelineTools()

	// The engine is built with a no-op invoker (it can't depend on this
	// server, which depends on it); wire the real one in now that both
	// exist.
	engine.SetInvoker(NewInvoker(s))

	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve starts the server with the given transport. stdio is the only
// transport wired up; the tool-dispatch API keeps stdout reserved for
// line-framed JSON, so log output never goes to stdout: the serve command
// logs to a rotating file with the stderr copy disabled (see internal/logging).
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting tool server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("tool server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("tool server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources. The MCP server itself has no handle to
// release; it stops when its context is cancelled.
func (s *Server) Close() error {
	return nil
}
