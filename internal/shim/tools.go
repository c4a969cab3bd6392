// internal/shim/tools.go
package shim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MereWhiplash/phrase-embedder/internal/apitypes"
	"github.com/MereWhiplash/phrase-embedder/internal/mcptypes"
	"github.com/MereWhiplash/phrase-embedder/internal/types"
)

// DefaultPollInterval is how often a foreground embed_run checks the remote run
const DefaultPollInterval = time.Second

// APIClient is the subset of client.Client the shim needs
type APIClient interface {
	Status(ctx context.Context, model string) (*apitypes.StatusResponse, error)
	StartRun(ctx context.Context, maxBatches int) (*types.Run, error)
	GetRun(ctx context.Context, id string) (*types.Run, error)
}

// Handler serves the embedding tools by forwarding them to a remote API server
type Handler struct {
	client       APIClient
	pollInterval time.Duration
}

// NewHandler creates a new shim handler
func NewHandler(c APIClient) *Handler {
	return &Handler{client: c, pollInterval: DefaultPollInterval}
}

// SetPollInterval changes how often foreground runs are polled
func (h *Handler) SetPollInterval(d time.Duration) {
	h.pollInterval = d
}

// Register adds the embedding tools to the MCP server
func Register(server *mcp.Server, h *Handler) {
	mcp.AddTool(server, mcptypes.StatusTool, h.Status)
	mcp.AddTool(server, mcptypes.RunTool, h.Run)
	mcp.AddTool(server, mcptypes.GetRunTool, h.GetRun)
}

func (h *Handler) Status(ctx context.Context, req *mcp.CallToolRequest, input mcptypes.StatusInput) (*mcp.CallToolResult, mcptypes.StatusOutput, error) {
	resp, err := h.client.Status(ctx, input.Model)
	if err != nil {
		return mcptypes.ErrorResult(fmt.Sprintf("failed to get status: %v", err)), mcptypes.StatusOutput{}, nil
	}

	out := mcptypes.StatusOutput{Status: resp.Status, ActiveRun: resp.ActiveRun}
	return mcptypes.TextResult(mcptypes.StatusText(resp.Status, resp.ActiveRun)), out, nil
}

// Run starts a run on the server. Unless Background is set it polls until the
// run finishes or ctx is cancelled; cancelling does not stop the remote run.
func (h *Handler) Run(ctx context.Context, req *mcp.CallToolRequest, input mcptypes.RunInput) (*mcp.CallToolResult, mcptypes.RunOutput, error) {
	if input.MaxBatches < 0 {
		return mcptypes.ErrorResult("max_batches must not be negative"), mcptypes.RunOutput{}, nil
	}

	run, err := h.client.StartRun(ctx, input.MaxBatches)
	if errors.Is(err, types.ErrRunInProgress) {
		return mcptypes.ErrorResult("an embedding run is already in progress"), mcptypes.RunOutput{}, nil
	}
	if err != nil {
		return mcptypes.ErrorResult(fmt.Sprintf("failed to start run: %v", err)), mcptypes.RunOutput{}, nil
	}
	if input.Background {
		return mcptypes.TextResult(fmt.Sprintf("Run %s started.", run.ID)), mcptypes.RunOutput{Run: run}, nil
	}

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	for run.State == types.RunRunning {
		select {
		case <-ctx.Done():
			return mcptypes.ErrorResult(fmt.Sprintf("stopped waiting for run %s: %v", run.ID, ctx.Err())), mcptypes.RunOutput{Run: run}, nil
		case <-ticker.C:
		}
		next, err := h.client.GetRun(ctx, run.ID)
		if err != nil {
			return mcptypes.ErrorResult(fmt.Sprintf("failed to poll run %s: %v", run.ID, err)), mcptypes.RunOutput{Run: run}, nil
		}
		run = next
	}

	if run.State == types.RunFailed {
		return mcptypes.ErrorResult(mcptypes.RunText(run)), mcptypes.RunOutput{Run: run}, nil
	}
	return mcptypes.TextResult(mcptypes.RunText(run)), mcptypes.RunOutput{Run: run}, nil
}

func (h *Handler) GetRun(ctx context.Context, req *mcp.CallToolRequest, input mcptypes.GetRunInput) (*mcp.CallToolResult, mcptypes.RunOutput, error) {
	if input.ID == "" {
		return mcptypes.ErrorResult("id is required"), mcptypes.RunOutput{}, nil
	}

	run, err := h.client.GetRun(ctx, input.ID)
	if errors.Is(err, types.ErrNotFound) {
		return mcptypes.ErrorResult(fmt.Sprintf("run %s not found", input.ID)), mcptypes.RunOutput{}, nil
	}
	if err != nil {
		return mcptypes.ErrorResult(fmt.Sprintf("failed to get run: %v", err)), mcptypes.RunOutput{}, nil
	}

	result, _ := json.MarshalIndent(run, "", "  ")
	return mcptypes.TextResult(string(result)), mcptypes.RunOutput{Run: run}, nil
}
