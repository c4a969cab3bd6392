package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MereWhiplash/phrase-embedder/internal/mcptypes"
	"github.com/MereWhiplash/phrase-embedder/internal/service"
	"github.com/MereWhiplash/phrase-embedder/internal/types"
)

// Handler holds dependencies for tool handlers
type Handler struct {
	svc *service.Service
}

// NewHandler creates a Handler
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register adds the embedding tools to the MCP server
func Register(server *mcp.Server, svc *service.Service) {
	h := NewHandler(svc)
	mcp.AddTool(server, mcptypes.StatusTool, h.Status)
	mcp.AddTool(server, mcptypes.RunTool, h.Run)
	mcp.AddTool(server, mcptypes.GetRunTool, h.GetRun)
}

func (h *Handler) Status(ctx context.Context, req *mcp.CallToolRequest, input mcptypes.StatusInput) (*mcp.CallToolResult, mcptypes.StatusOutput, error) {
	st, err := h.svc.Status(ctx, input.Model)
	if err != nil {
		return mcptypes.ErrorResult(fmt.Sprintf("failed to get status: %v", err)), mcptypes.StatusOutput{}, nil
	}

	out := mcptypes.StatusOutput{Status: st}
	if run, ok := h.svc.ActiveRun(); ok {
		out.ActiveRun = run
	}
	return mcptypes.TextResult(mcptypes.StatusText(st, out.ActiveRun)), out, nil
}

func (h *Handler) Run(ctx context.Context, req *mcp.CallToolRequest, input mcptypes.RunInput) (*mcp.CallToolResult, mcptypes.RunOutput, error) {
	if input.MaxBatches < 0 {
		return mcptypes.ErrorResult("max_batches must not be negative"), mcptypes.RunOutput{}, nil
	}

	if input.Background {
		run, err := h.svc.StartRun(input.MaxBatches)
		if err != nil {
			return mcptypes.ErrorResult(runError(err)), mcptypes.RunOutput{}, nil
		}
		return mcptypes.TextResult(fmt.Sprintf("Run %s started.", run.ID)), mcptypes.RunOutput{Run: run}, nil
	}

	run, err := h.svc.Run(ctx, input.MaxBatches)
	if run == nil {
		return mcptypes.ErrorResult(runError(err)), mcptypes.RunOutput{}, nil
	}
	if err != nil {
		return mcptypes.ErrorResult(mcptypes.RunText(run)), mcptypes.RunOutput{Run: run}, nil
	}
	return mcptypes.TextResult(mcptypes.RunText(run)), mcptypes.RunOutput{Run: run}, nil
}

func (h *Handler) GetRun(ctx context.Context, req *mcp.CallToolRequest, input mcptypes.GetRunInput) (*mcp.CallToolResult, mcptypes.RunOutput, error) {
	if input.ID == "" {
		return mcptypes.ErrorResult("id is required"), mcptypes.RunOutput{}, nil
	}

	run, err := h.svc.GetRun(input.ID)
	if errors.Is(err, types.ErrNotFound) {
		return mcptypes.ErrorResult(fmt.Sprintf("run %s not found", input.ID)), mcptypes.RunOutput{}, nil
	}
	if err != nil {
		return mcptypes.ErrorResult(fmt.Sprintf("failed to get run: %v", err)), mcptypes.RunOutput{}, nil
	}

	result, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return mcptypes.ErrorResult(fmt.Sprintf("failed to format response: %v", err)), mcptypes.RunOutput{}, nil
	}
	return mcptypes.TextResult(string(result)), mcptypes.RunOutput{Run: run}, nil
}

func runError(err error) string {
	if errors.Is(err, types.ErrRunInProgress) {
		return "an embedding run is already in progress"
	}
	return fmt.Sprintf("failed to start run: %v", err)
}
