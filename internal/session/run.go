// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/promptlab/internal/errs"
	"github.com/jeranaias/promptlab/internal/executor"
	"github.com/jeranaias/promptlab/internal/model"
	"github.com/jeranaias/promptlab/internal/render"
	"github.com/jeranaias/promptlab/internal/resolve"
	"github.com/jeranaias/promptlab/internal/sources"
	"github.com/jeranaias/promptlab/internal/variables"
)

// =============================================================================
// RUN FUTURE
// =============================================================================

// Flavor distinguishes the two kinds of run.
type Flavor string

const (
	// FlavorInitial seeds an empty conversation from the rendered template.
	FlavorInitial Flavor = "initial"
	// FlavorFollowUp finalizes the editing tail and sends the history.
	FlavorFollowUp Flavor = "follow_up"
)

// RunResult is the outcome of a settled run.
type RunResult struct {
	Reply    model.Message
	Err      error
	Duration time.Duration
}

// Run is a handle on one in-flight or settled run. Runs cannot be
// cancelled; every run settles exactly once.
type Run struct {
	ID        string
	Flavor    Flavor
	StartedAt time.Time

	done   chan struct{}
	result RunResult
}

// Done is closed when the run has settled and the session is idle again.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run settles or ctx ends. A ctx error does not stop
// the run.
func (r *Run) Wait(ctx context.Context) (model.Message, error) {
	select {
	case <-r.done:
		return r.result.Reply, r.result.Err
	case <-ctx.Done():
		return model.Message{}, ctx.Err()
	}
}

// Result returns the outcome if the run has settled.
func (r *Run) Result() (RunResult, bool) {
	select {
	case <-r.done:
		return r.result, true
	default:
		return RunResult{}, false
	}
}

// =============================================================================
// RUN START
// =============================================================================

// runPlan is everything a run needs, captured while holding the lock.
type runPlan struct {
	run    *Run
	config model.ModelConfig

	// initial
	seeds   []model.Message
	vars    []variables.Variable
	sources []sources.Source

	// follow-up
	history []model.Message
	tailID  string
}

func (s *Session) startRunLocked(ctx context.Context) (Result, error) {
	if !s.hasSystemContentLocked() {
		return Result{}, ErrNoSystemMessage
	}

	plan := runPlan{config: s.config}
	last, hasHistory := s.conversation.Last()
	switch {
	case !hasHistory:
		plan.seeds, plan.vars, plan.sources = s.renderInputsLocked()
		plan.run = newRun(FlavorInitial)
	case last.Role == model.RoleUser && last.Editing:
		if last.IsBlank() {
			return Result{}, ErrEmptyFollowUp
		}
		plan.history = s.conversation.All()
		plan.history[len(plan.history)-1].Editing = false
		plan.tailID = last.ID
		plan.run = newRun(FlavorFollowUp)
	default:
		return Result{}, ErrNothingToRun
	}

	s.running = true
	s.current = plan.run
	s.log.Info("run started", "run", plan.run.ID, "flavor", plan.run.Flavor, "model", plan.config.Model)

	go s.execute(context.WithoutCancel(ctx), plan)
	return Result{Changed: true, Run: plan.run}, nil
}

// renderInputsLocked captures what rendering the template needs: the
// prompt messages, the bindings and the sources they reference.
func (s *Session) renderInputsLocked() ([]model.Message, []variables.Variable, []sources.Source) {
	seeds := promptMessages(s.template.All())
	vars := s.vars.List()
	var srcs []sources.Source
	for _, id := range render.ReferencedSources(seeds, vars) {
		if src, ok := s.sources.Get(id); ok {
			srcs = append(srcs, src)
		}
	}
	return seeds, vars, srcs
}

// Preview renders the template the way an initial run would, fetching the
// referenced sources, and leaves the session untouched. It is allowed while
// a run is in flight.
func (s *Session) Preview(ctx context.Context) ([]model.Message, error) {
	s.mu.Lock()
	seeds, vars, srcs := s.renderInputsLocked()
	s.mu.Unlock()

	values, err := resolve.ResolveAll(ctx, s.resolver, srcs, s.resolveConcurrency)
	if err != nil {
		return nil, err
	}
	return render.Render(seeds, vars, values), nil
}

func newRun(flavor Flavor) *Run {
	return &Run{
		ID:        "run_" + uuid.NewString(),
		Flavor:    flavor,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

func (s *Session) hasSystemContentLocked() bool {
	for _, msg := range s.template.All() {
		if msg.Role == model.RoleSystem && !msg.IsBlank() {
			return true
		}
	}
	return false
}

// promptMessages keeps the non-blank system and user messages of a template.
func promptMessages(tmpl []model.Message) []model.Message {
	out := make([]model.Message, 0, len(tmpl))
	for _, msg := range tmpl {
		if (msg.Role == model.RoleSystem || msg.Role == model.RoleUser) && !msg.IsBlank() {
			out = append(out, msg)
		}
	}
	return out
}

// =============================================================================
// EXECUTION
// =============================================================================

// execute runs outside the lock and always settles the run.
func (s *Session) execute(ctx context.Context, plan runPlan) {
	var (
		turns     []model.Turn
		conversed []model.Message
		reply     model.Message
		err       error
	)
	defer func() {
		if p := recover(); p != nil {
			err = errs.Execution("run", fmt.Errorf("executor panic: %v", p))
		}
		s.settle(plan, conversed, reply, err)
	}()

	switch plan.run.Flavor {
	case FlavorInitial:
		var values render.ContextValues
		values, err = resolve.ResolveAll(ctx, s.resolver, plan.sources, s.resolveConcurrency)
		if err != nil {
			return
		}
		conversed = seedConversation(render.Render(plan.seeds, plan.vars, values))
		turns = model.Turns(conversed)
	case FlavorFollowUp:
		turns = model.Turns(plan.history)
	}

	var resp executor.Response
	resp, err = s.exec.Execute(ctx, executor.Request{Turns: turns, Config: plan.config})
	if err != nil {
		err = errs.Execution("run", err)
		return
	}
	reply = model.NewAssistantMessage(resp.Content)
}

// seedConversation gives rendered template messages fresh ids and closes
// them for editing.
func seedConversation(rendered []model.Message) []model.Message {
	out := make([]model.Message, len(rendered))
	for i, msg := range rendered {
		out[i] = model.NewMessage(msg.Role, msg.Content)
	}
	return out
}

// settle commits the outcome, releases the gate and wakes waiters.
func (s *Session) settle(plan runPlan, seeded []model.Message, reply model.Message, err error) {
	run := plan.run

	s.mu.Lock()
	if err == nil {
		switch run.Flavor {
		case FlavorInitial:
			s.conversation = model.NewMessageList(seeded...)
		case FlavorFollowUp:
			s.conversation.Update(plan.tailID, func(m *model.Message) { m.Editing = false })
		}
		s.conversation.Append(reply)
		run.result = RunResult{Reply: reply}
	} else {
		run.result = RunResult{Err: err}
	}
	run.result.Duration = time.Since(run.StartedAt)
	s.running = false
	s.current = nil
	s.last = run
	hooks := s.onSettle
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("run failed", "run", run.ID, "flavor", run.Flavor, "duration", run.result.Duration, "error", err)
	} else {
		s.log.Info("run settled", "run", run.ID, "flavor", run.Flavor, "duration", run.result.Duration)
	}
	close(run.done)
	for _, fn := range hooks {
		fn(run)
	}
}
