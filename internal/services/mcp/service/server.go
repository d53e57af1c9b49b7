// Package service hosts the MCP server exposing story sessions as tools.
//
// The server binds every story tool to a shared Stage so MCP clients can
// create sessions, run turns, steer pacing, and read transcripts over a
// stdio transport.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/stagecraft-live/stagecraft/internal/services/mcp/domain"
)

const (
	serverName    = "stagecraft"
	serverVersion = "1.0.0"
)

// Server hosts the MCP server.
type Server struct {
	mcpServer *mcp.Server
	stage     *Stage
}

// New creates a configured MCP server with every story tool registered
// against the given stage.
func New(stage *Stage) (*Server, error) {
	if stage == nil {
		return nil, errors.New("stage is required")
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	mcp.AddTool(mcpServer, domain.SessionCreateTool(), domain.SessionCreateHandler(stage))
	mcp.AddTool(mcpServer, domain.SessionListTool(), domain.SessionListHandler(stage))
	mcp.AddTool(mcpServer, domain.StatusTool(), domain.StatusHandler(stage))
	mcp.AddTool(mcpServer, domain.TurnTool(), domain.TurnHandler(stage))
	mcp.AddTool(mcpServer, domain.ControlsUpdateTool(), domain.ControlsUpdateHandler(stage))
	mcp.AddTool(mcpServer, domain.GoalSetTool(), domain.GoalSetHandler(stage))
	mcp.AddTool(mcpServer, domain.ResetTool(), domain.ResetHandler(stage))
	mcp.AddTool(mcpServer, domain.TranscriptTool(), domain.TranscriptHandler(stage))

	return &Server{mcpServer: mcpServer, stage: stage}, nil
}

// Serve runs the MCP server over stdio until the context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

// Run builds a stage from deps and serves MCP over stdio until the context
// ends.
func Run(ctx context.Context, deps StageDeps) error {
	if deps.Generator == nil {
		return errors.New("character generator is required")
	}
	server, err := New(NewStage(deps))
	if err != nil {
		return fmt.Errorf("init MCP server: %w", err)
	}
	return server.Serve(ctx)
}
