package oracle

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/agentstack/core"
)

// ErrScriptExhausted is returned once all scripted replies have been used.
var ErrScriptExhausted = errors.New("oracle script exhausted")

// Scripted is an in-memory Oracle answering with queued replies in order.
// It records every request so tests can inspect the transcripts.
type Scripted struct {
	mu       sync.Mutex
	replies  []*core.OracleReply
	requests []core.OracleRequest
	fallback func(req core.OracleRequest) (*core.OracleReply, error)
}

// NewScripted returns an oracle that answers with replies in order.
func NewScripted(replies ...*core.OracleReply) *Scripted {
	return &Scripted{replies: replies}
}

// Push appends replies to the script.
func (s *Scripted) Push(replies ...*core.OracleReply) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replies = append(s.replies, replies...)
}

// WithFallback answers with fn once the script is exhausted.
func (s *Scripted) WithFallback(fn func(req core.OracleRequest) (*core.OracleReply, error)) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fallback = fn

	return s
}

// Ask implements core.Oracle.
func (s *Scripted) Ask(ctx context.Context, req core.OracleRequest) (*core.OracleReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)

	if len(s.replies) == 0 {
		if s.fallback != nil {
			return s.fallback(req)
		}

		return nil, ErrScriptExhausted
	}

	reply := s.replies[0]
	s.replies = s.replies[1:]

	cp := *reply
	if reply.ToolCall != nil {
		tc := *reply.ToolCall
		cp.ToolCall = &tc
	}

	return &cp, nil
}

// Calls returns how many times Ask was invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.requests)
}

// Requests returns the recorded requests.
func (s *Scripted) Requests() []core.OracleRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]core.OracleRequest(nil), s.requests...)
}

// Remaining returns how many scripted replies are left.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.replies)
}

// Text is a reply without a tool call.
func Text(content string) *core.OracleReply {
	return &core.OracleReply{Content: content}
}

// Call is a reply selecting a tool. The call id is generated.
func Call(tool string, args map[string]any) *core.OracleReply {
	return &core.OracleReply{ToolCall: &core.OracleToolCall{ID: "call_" + core.NewID(), Name: tool, Args: args}}
}
