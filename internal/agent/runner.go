package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mtlfinder/voyago/internal/domain"
	"github.com/mtlfinder/voyago/internal/llm"
	"github.com/mtlfinder/voyago/internal/logging"
	"github.com/mtlfinder/voyago/internal/session"
	"github.com/mtlfinder/voyago/internal/tools"
)

// ErrModelUnavailable reports that the chat model could not produce a
// completion. The turn's user message stays in the session so the caller can
// retry without losing it.
var ErrModelUnavailable = errors.New("model unavailable")

// loopExceededResponse is returned verbatim when a turn hits the tool-round
// cap without the model producing a final answer.
const loopExceededResponse = "I wasn't able to finish gathering everything I needed for that. " +
	"Could you rephrase or break the request into smaller steps?"

// RunnerConfig configures the conversation runner.
type RunnerConfig struct {
	Model             string
	MaxTokens         int
	Temperature       *float64
	MaxToolRounds     int
	ReplayToolHistory bool
	ExtraPrompt       string
}

// TurnRequest is one user message addressed to a session.
type TurnRequest struct {
	SessionID string
	Content   string
	Location  *domain.Location
}

// ToolTraceEntry records one tool invocation made during a turn.
type ToolTraceEntry struct {
	Tool       string          `json:"tool"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
}

// TurnResult is the outcome of processing one user message.
type TurnResult struct {
	Response     string           `json:"response"`
	SessionID    string           `json:"session_id"`
	Model        string           `json:"model,omitempty"`
	ToolTrace    []ToolTraceEntry `json:"tool_trace,omitempty"`
	Rounds       int              `json:"rounds"`
	LimitReached bool             `json:"limit_reached,omitempty"`
	Usage        llm.Usage        `json:"usage"`
	Duration     time.Duration    `json:"duration"`
}

// EventCallback receives progress events while a turn executes.
// Event types:
//   - "tool_start": a tool invocation is beginning
//   - "tool_result": the tool completed successfully
//   - "tool_error": the tool failed (the turn continues)
//   - "done": the final response is ready
type EventCallback func(event Event)

// Event is one progress notification during a turn.
type Event struct {
	Type    string      `json:"type"`
	Tool    string      `json:"tool,omitempty"`
	Content string      `json:"content,omitempty"`
	Result  *TurnResult `json:"result,omitempty"`
}

// Runner drives the tool-calling conversation loop. Turns on the same
// session are serialized; turns on different sessions run concurrently.
type Runner struct {
	cfg      RunnerConfig
	client   llm.Client
	sessions session.Store
	tools    *tools.Registry
	log      *logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRunner creates a conversation runner.
func NewRunner(cfg RunnerConfig, client llm.Client, sessions session.Store, registry *tools.Registry, log *logging.Logger) *Runner {
	if cfg.MaxToolRounds < 5 {
		cfg.MaxToolRounds = 5
	}
	return &Runner{
		cfg:      cfg,
		client:   client,
		sessions: sessions,
		tools:    registry,
		log:      log.Component("agent"),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Run processes one user message and returns the assistant's response.
func (r *Runner) Run(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	return r.RunWithEvents(ctx, req, nil)
}

// RunWithEvents is Run with progress events delivered to cb as the turn
// executes. cb may be nil.
func (r *Runner) RunWithEvents(ctx context.Context, req TurnRequest, cb EventCallback) (*TurnResult, error) {
	lock := r.sessionLock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	history, err := r.sessions.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	r.log.Info().
		Str("sessionId", req.SessionID).
		Int("historyLen", len(history)).
		Msg("processing message")

	content := req.Content
	if req.Location != nil {
		content = fmt.Sprintf("%s\n\n[User's current location: latitude %v, longitude %v]",
			content, req.Location.Latitude, req.Location.Longitude)
	}

	userMsg := domain.Message{Role: domain.RoleUser, Content: content, Timestamp: time.Now()}
	if err := r.sessions.Append(ctx, req.SessionID, userMsg); err != nil {
		return nil, err
	}

	system := BuildSystemPrompt(PromptConfig{Now: start, UserLocation: req.Location, ExtraPrompt: r.cfg.ExtraPrompt})

	// Replayed history plus everything this turn produces. The store keeps
	// the full record either way; filtering only shapes the model prompt.
	base := r.replayable(history)
	turn := []domain.Message{userMsg}

	var trace []ToolTraceEntry
	var usage llm.Usage
	modelName := r.cfg.Model

	for round := 0; round < r.cfg.MaxToolRounds; round++ {
		resp, err := r.client.Complete(ctx, llm.CompletionRequest{
			Model:       r.cfg.Model,
			Messages:    r.promptMessages(system, base, turn),
			Tools:       r.tools.ModelTools(),
			MaxTokens:   r.cfg.MaxTokens,
			Temperature: r.cfg.Temperature,
		})
		if err != nil {
			r.log.Error().Err(err).Str("sessionId", req.SessionID).Msg("model completion failed")
			return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}

		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens
		if resp.Model != "" {
			modelName = resp.Model
		}

		if len(resp.ToolCalls) == 0 {
			result := &TurnResult{
				Response:  resp.Content,
				SessionID: req.SessionID,
				Model:     modelName,
				ToolTrace: trace,
				Rounds:    round + 1,
				Usage:     usage,
				Duration:  time.Since(start),
			}
			if err := r.finishTurn(ctx, req.SessionID, resp.Content, result, cb); err != nil {
				return nil, err
			}
			return result, nil
		}

		assistantMsg := domain.Message{
			Role:      domain.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: toDomainCalls(resp.ToolCalls),
			Timestamp: time.Now(),
		}
		if err := r.sessions.Append(ctx, req.SessionID, assistantMsg); err != nil {
			return nil, err
		}
		turn = append(turn, assistantMsg)

		r.log.Info().
			Str("sessionId", req.SessionID).
			Int("round", round+1).
			Int("toolCalls", len(resp.ToolCalls)).
			Msg("executing tool calls")

		for _, call := range resp.ToolCalls {
			toolMsg, entry := r.executeCall(ctx, call, cb)
			trace = append(trace, entry)
			if err := r.sessions.Append(ctx, req.SessionID, toolMsg); err != nil {
				return nil, err
			}
			turn = append(turn, toolMsg)
		}
	}

	r.log.Warn().
		Str("sessionId", req.SessionID).
		Int("maxToolRounds", r.cfg.MaxToolRounds).
		Msg("tool round limit reached")

	result := &TurnResult{
		Response:     loopExceededResponse,
		SessionID:    req.SessionID,
		Model:        modelName,
		ToolTrace:    trace,
		Rounds:       r.cfg.MaxToolRounds,
		LimitReached: true,
		Usage:        usage,
		Duration:     time.Since(start),
	}
	if err := r.finishTurn(ctx, req.SessionID, loopExceededResponse, result, cb); err != nil {
		return nil, err
	}
	return result, nil
}

// executeCall runs one tool call and folds any failure into the tool message
// so the model can react to it instead of the turn aborting.
func (r *Runner) executeCall(ctx context.Context, call llm.ToolCall, cb EventCallback) (domain.Message, ToolTraceEntry) {
	emit(cb, Event{Type: "tool_start", Tool: call.Name})

	callStart := time.Now()
	output, err := r.tools.Execute(ctx, call.Name, call.Arguments)
	elapsed := time.Since(callStart)

	entry := ToolTraceEntry{
		Tool:       call.Name,
		Arguments:  call.Arguments,
		DurationMs: elapsed.Milliseconds(),
	}

	var content string
	if err != nil {
		r.log.Warn().Err(err).Str("tool", call.Name).Dur("duration", elapsed).Msg("tool failed")
		entry.Error = err.Error()
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		content = string(payload)
		emit(cb, Event{Type: "tool_error", Tool: call.Name, Content: err.Error()})
	} else {
		r.log.Debug().Str("tool", call.Name).Dur("duration", elapsed).Msg("tool completed")
		content = string(output)
		emit(cb, Event{Type: "tool_result", Tool: call.Name})
	}

	return domain.Message{
		Role:       domain.RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Timestamp:  time.Now(),
	}, entry
}

func (r *Runner) finishTurn(ctx context.Context, sessionID, response string, result *TurnResult, cb EventCallback) error {
	err := r.sessions.Append(ctx, sessionID, domain.Message{
		Role:      domain.RoleAssistant,
		Content:   response,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}

	r.log.Info().
		Str("sessionId", sessionID).
		Str("model", result.Model).
		Int("rounds", result.Rounds).
		Int("toolCalls", len(result.ToolTrace)).
		Int("inputTokens", result.Usage.InputTokens).
		Int("outputTokens", result.Usage.OutputTokens).
		Dur("duration", result.Duration).
		Msg("response generated")

	emit(cb, Event{Type: "done", Content: response, Result: result})
	return nil
}

// replayable selects which stored messages from earlier turns feed the model
// prompt. With replay disabled, tool exchanges are dropped and only the
// user/assistant transcript is kept.
func (r *Runner) replayable(history []domain.Message) []domain.Message {
	if r.cfg.ReplayToolHistory {
		return history
	}
	kept := make([]domain.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case domain.RoleTool:
			continue
		case domain.RoleAssistant:
			if m.Content == "" && len(m.ToolCalls) > 0 {
				continue
			}
			m.ToolCalls = nil
		}
		kept = append(kept, m)
	}
	return kept
}

func (r *Runner) promptMessages(system string, base, turn []domain.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(base)+len(turn)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, m := range base {
		msgs = append(msgs, toModelMessage(m))
	}
	for _, m := range turn {
		msgs = append(msgs, toModelMessage(m))
	}
	return msgs
}

func toModelMessage(m domain.Message) llm.Message {
	out := llm.Message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		Name:       m.ToolName,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
	}
	return out
}

func toDomainCalls(calls []llm.ToolCall) []domain.ToolCall {
	out := make([]domain.ToolCall, 0, len(calls))
	for _, c := range calls {
		out = append(out, domain.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
	}
	return out
}

func (r *Runner) sessionLock(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}

func emit(cb EventCallback, evt Event) {
	if cb != nil {
		cb(evt)
	}
}
