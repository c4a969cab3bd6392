package shim_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MereWhiplash/phrase-embedder/internal/apitypes"
	"github.com/MereWhiplash/phrase-embedder/internal/mcptypes"
	"github.com/MereWhiplash/phrase-embedder/internal/shim"
	"github.com/MereWhiplash/phrase-embedder/internal/types"
)

// mockAPIClient implements shim.APIClient for testing
type mockAPIClient struct {
	status    *types.Status
	active    *types.Run
	runs      map[string][]*types.Run // successive GetRun answers per id
	started   []int
	statusErr error
	startErr  error
	getErr    error
}

func (m *mockAPIClient) Status(ctx context.Context, model string) (*apitypes.StatusResponse, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	st := *m.status
	if model != "" {
		st.Model = model
	}
	return &apitypes.StatusResponse{Status: &st, ActiveRun: m.active}, nil
}

func (m *mockAPIClient) StartRun(ctx context.Context, maxBatches int) (*types.Run, error) {
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.started = append(m.started, maxBatches)
	id := fmt.Sprintf("run-%d", len(m.started))
	return &types.Run{ID: id, Model: "bge-m3", State: types.RunRunning}, nil
}

func (m *mockAPIClient) GetRun(ctx context.Context, id string) (*types.Run, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	answers, ok := m.runs[id]
	if !ok || len(answers) == 0 {
		return nil, fmt.Errorf("%w: run not found", types.ErrNotFound)
	}
	run := answers[0]
	if len(answers) > 1 {
		m.runs[id] = answers[1:]
	}
	return run, nil
}

func text(result *mcp.CallToolResult) string {
	if tc, ok := result.Content[0].(*mcp.TextContent); ok {
		return tc.Text
	}
	return ""
}

func newHandler(client *mockAPIClient) *shim.Handler {
	h := shim.NewHandler(client)
	h.SetPollInterval(time.Millisecond)
	return h
}

func TestShimHandler_Status(t *testing.T) {
	client := &mockAPIClient{
		status: &types.Status{Model: "bge-m3", ActivePhrases: 5, Embedded: 3, Pending: 2},
		active: &types.Run{ID: "run-9", State: types.RunRunning},
	}
	handler := newHandler(client)

	result, output, err := handler.Status(context.Background(), nil, mcptypes.StatusInput{})
	if err != nil {
		t.Fatalf("Status returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Status returned error result: %s", text(result))
	}
	if output.Status.Pending != 2 {
		t.Errorf("expected 2 pending, got %d", output.Status.Pending)
	}
	if !strings.Contains(text(result), "Run run-9 in progress") {
		t.Errorf("expected active run in text, got %q", text(result))
	}
}

func TestShimHandler_Status_ClientError(t *testing.T) {
	client := &mockAPIClient{statusErr: errors.New("connection failed")}
	result, _, _ := newHandler(client).Status(context.Background(), nil, mcptypes.StatusInput{})
	if !result.IsError {
		t.Error("expected error result when client fails")
	}
}

func TestShimHandler_Run_PollsUntilDone(t *testing.T) {
	client := &mockAPIClient{runs: map[string][]*types.Run{
		"run-1": {
			{ID: "run-1", State: types.RunRunning, Batches: 1, Phrases: 128},
			{ID: "run-1", State: types.RunSucceeded, Batches: 2, Phrases: 200, Exhausted: true},
		},
	}}
	handler := newHandler(client)

	result, output, err := handler.Run(context.Background(), nil, mcptypes.RunInput{MaxBatches: 5})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.IsError {
		t.Fatalf("Run returned error result: %s", text(result))
	}
	if output.Run.State != types.RunSucceeded || output.Run.Phrases != 200 {
		t.Errorf("unexpected run %+v", output.Run)
	}
	if len(client.started) != 1 || client.started[0] != 5 {
		t.Errorf("expected one start with max_batches 5, got %v", client.started)
	}
	if !strings.Contains(text(result), "No more phrases needing embedding.") {
		t.Errorf("unexpected text %q", text(result))
	}
}

func TestShimHandler_Run_Background(t *testing.T) {
	client := &mockAPIClient{}
	result, output, _ := newHandler(client).Run(context.Background(), nil, mcptypes.RunInput{Background: true})
	if result.IsError {
		t.Fatalf("unexpected error result: %s", text(result))
	}
	if output.Run.State != types.RunRunning {
		t.Errorf("expected running state, got %s", output.Run.State)
	}
}

func TestShimHandler_Run_Failed(t *testing.T) {
	client := &mockAPIClient{runs: map[string][]*types.Run{
		"run-1": {{ID: "run-1", State: types.RunFailed, Error: "embedding failed: model not found"}},
	}}
	result, output, _ := newHandler(client).Run(context.Background(), nil, mcptypes.RunInput{})
	if !result.IsError {
		t.Fatal("expected error result for failed run")
	}
	if output.Run == nil || output.Run.State != types.RunFailed {
		t.Errorf("expected failed run in output, got %+v", output.Run)
	}
	if !strings.Contains(text(result), "model not found") {
		t.Errorf("expected remote error in text, got %q", text(result))
	}
}

func TestShimHandler_Run_Errors(t *testing.T) {
	tests := []struct {
		name   string
		client *mockAPIClient
		input  mcptypes.RunInput
		want   string
	}{
		{"negative max batches", &mockAPIClient{}, mcptypes.RunInput{MaxBatches: -1}, "must not be negative"},
		{"in progress", &mockAPIClient{startErr: types.ErrRunInProgress}, mcptypes.RunInput{}, "already in progress"},
		{"start failure", &mockAPIClient{startErr: errors.New("connection failed")}, mcptypes.RunInput{}, "failed to start run"},
		{"poll failure", &mockAPIClient{getErr: errors.New("timeout")}, mcptypes.RunInput{}, "failed to poll"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, _ := newHandler(tt.client).Run(context.Background(), nil, tt.input)
			if !result.IsError {
				t.Fatalf("expected error result")
			}
			if !strings.Contains(text(result), tt.want) {
				t.Errorf("expected %q in %q", tt.want, text(result))
			}
		})
	}
}

func TestShimHandler_Run_Cancelled(t *testing.T) {
	client := &mockAPIClient{runs: map[string][]*types.Run{
		"run-1": {{ID: "run-1", State: types.RunRunning}},
	}}
	handler := shim.NewHandler(client)
	handler.SetPollInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, output, _ := handler.Run(ctx, nil, mcptypes.RunInput{})
	if !result.IsError {
		t.Fatal("expected error result after cancellation")
	}
	if output.Run == nil || output.Run.ID != "run-1" {
		t.Errorf("expected run record in output, got %+v", output.Run)
	}
}

func TestShimHandler_GetRun(t *testing.T) {
	client := &mockAPIClient{runs: map[string][]*types.Run{
		"run-1": {{ID: "run-1", State: types.RunSucceeded}},
	}}
	handler := newHandler(client)

	result, output, _ := handler.GetRun(context.Background(), nil, mcptypes.GetRunInput{ID: "run-1"})
	if result.IsError {
		t.Fatalf("unexpected error result: %s", text(result))
	}
	if output.Run.ID != "run-1" {
		t.Errorf("expected run-1, got %s", output.Run.ID)
	}

	result, _, _ = handler.GetRun(context.Background(), nil, mcptypes.GetRunInput{ID: "nope"})
	if !result.IsError || !strings.Contains(text(result), "not found") {
		t.Errorf("expected not found, got %q", text(result))
	}

	result, _, _ = handler.GetRun(context.Background(), nil, mcptypes.GetRunInput{})
	if !result.IsError {
		t.Error("expected error for empty id")
	}
}
