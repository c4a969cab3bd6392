// internal/mcptypes/types.go
// Package mcptypes contains shared MCP tool input/output types.
// These are used by both the direct MCP server (tools) and the shim proxy.
package mcptypes

import (
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MereWhiplash/phrase-embedder/internal/types"
)

// StatusInput defines the input schema for embed_status
type StatusInput struct {
	Model string `json:"model,omitempty" jsonschema:"Model identifier (default: the configured model)"`
}

// StatusOutput defines the output schema for embed_status
type StatusOutput struct {
	Status    *types.Status `json:"status"`
	ActiveRun *types.Run    `json:"active_run,omitempty"`
}

// RunInput defines the input schema for embed_run
type RunInput struct {
	MaxBatches int  `json:"max_batches,omitempty" jsonschema:"Stop after this many committed batches (default: until no phrase is pending)"`
	Background bool `json:"background,omitempty" jsonschema:"Return immediately and let the run continue in the background"`
}

// RunOutput defines the output schema for embed_run and embed_get_run
type RunOutput struct {
	Run *types.Run `json:"run"`
}

// GetRunInput defines the input schema for embed_get_run
type GetRunInput struct {
	ID string `json:"id" jsonschema:"ID of a run started by embed_run"`
}

// TextResult creates a successful MCP result with text content
func TextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// ErrorResult creates an error MCP result
func ErrorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// StatusText renders coverage the same way for both servers
func StatusText(st *types.Status, active *types.Run) string {
	msg := fmt.Sprintf("Model %s: %d of %d active phrases embedded, %d pending.",
		st.Model, st.Embedded, st.ActivePhrases, st.Pending)
	if active != nil {
		msg += fmt.Sprintf(" Run %s in progress.", active.ID)
	}
	return msg
}

// RunText summarizes a finished run
func RunText(run *types.Run) string {
	if run.State == types.RunFailed {
		return fmt.Sprintf("Run %s failed after %d batches: %s", run.ID, run.Batches, run.Error)
	}
	msg := fmt.Sprintf("Embedded %d phrases in %d batches.", run.Phrases, run.Batches)
	if run.Exhausted {
		msg += " No more phrases needing embedding."
	}
	return msg
}

// Tool definitions (shared between server and shim)
var (
	StatusTool = &mcp.Tool{
		Name:        "embed_status",
		Description: "Report how many active phrases have an embedding for a model",
	}

	RunTool = &mcp.Tool{
		Name:        "embed_run",
		Description: "Embed pending phrases in bounded batches until none remain",
	}

	GetRunTool = &mcp.Tool{
		Name:        "embed_get_run",
		Description: "Look up a run started by embed_run",
	}
)
