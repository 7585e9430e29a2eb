// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package executor defines the run executor boundary: rendered turns plus a
// model configuration in, one assistant reply out.
//
// Two implementations are provided. Echo simulates a model after a delay and
// replies with the turns it was given; Ollama sends the turns to a local
// Ollama server.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/promptlab/internal/model"
)

// Request is the input of one run.
type Request struct {
	Turns  []model.Turn
	Config model.ModelConfig
}

// Response is the assistant reply of one run.
type Response struct {
	Role    model.Role
	Content string
}

// Executor performs a run. Implementations must honour ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, req Request) (Response, error)
}

// Func adapts a function to Executor.
type Func func(ctx context.Context, req Request) (Response, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// =============================================================================
// ECHO EXECUTOR
// =============================================================================

// DefaultEchoDelay is the simulated latency of the echo executor.
const DefaultEchoDelay = 1500 * time.Millisecond

// Echo replies with a transcript of the turns it received.
type Echo struct {
	Delay time.Duration
}

// NewEcho creates an echo executor. A negative delay means DefaultEchoDelay.
func NewEcho(delay time.Duration) *Echo {
	if delay < 0 {
		delay = DefaultEchoDelay
	}
	return &Echo{Delay: delay}
}

// Execute waits for the configured delay and returns the transcript.
func (e *Echo) Execute(ctx context.Context, req Request) (Response, error) {
	if len(req.Turns) == 0 {
		return Response{}, fmt.Errorf("echo: no turns to send")
	}
	if e.Delay > 0 {
		timer := time.NewTimer(e.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-timer.C:
		}
	}
	return Response{Role: model.RoleAssistant, Content: EchoContent(req.Turns)}, nil
}

// EchoContent formats turns the way the echo executor replies.
func EchoContent(turns []model.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Role, t.Content))
	}
	return "Echoed response:\n" + strings.Join(lines, "\n")
}
