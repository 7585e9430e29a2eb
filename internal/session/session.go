// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/promptlab/internal/errs"
	"github.com/jeranaias/promptlab/internal/executor"
	"github.com/jeranaias/promptlab/internal/logger"
	"github.com/jeranaias/promptlab/internal/model"
	"github.com/jeranaias/promptlab/internal/resolve"
	"github.com/jeranaias/promptlab/internal/sources"
	"github.com/jeranaias/promptlab/internal/variables"
)

// =============================================================================
// STATE
// =============================================================================

// State is the run state of a session.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// DefaultSystemPrompt seeds the template of a new session.
const DefaultSystemPrompt = "You are a helpful assistant. Respond to the user based on {{topic}} and context: {{context}}. Consider the audience: {{audience}}."

// Sentinel errors.
var (
	ErrRunInProgress   = errs.Conflict("", "a run is in progress")
	ErrNoSystemMessage = errs.Validation("", "template", "a system message with content is required")
	ErrEmptyFollowUp   = errs.Validation("", "conversation", "follow-up message is empty")
	ErrNothingToRun    = errs.Validation("", "conversation", "conversation has no pending follow-up")
)

// =============================================================================
// SESSION
// =============================================================================

// Session is the session-scoped context object. It is safe for concurrent
// use; mutations are serialized and reads return copies.
type Session struct {
	mu sync.Mutex

	id           string
	template     *model.MessageList
	conversation *model.MessageList
	vars         *variables.Registry
	sources      *sources.Registry
	config       model.ModelConfig
	tools        []string

	running bool
	current *Run
	last    *Run

	exec               executor.Executor
	resolver           resolve.Resolver
	resolveConcurrency int
	log                *logger.Logger
	onSettle           []func(*Run)
}

// Option configures a Session.
type Option func(*Session)

// WithID sets the session id.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithExecutor sets the run executor.
func WithExecutor(e executor.Executor) Option {
	return func(s *Session) { s.exec = e }
}

// WithResolver sets the external value resolver.
func WithResolver(r resolve.Resolver) Option {
	return func(s *Session) { s.resolver = r }
}

// WithResolveConcurrency bounds concurrent source fetches per run.
func WithResolveConcurrency(n int) Option {
	return func(s *Session) { s.resolveConcurrency = n }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithModelConfig sets the initial model configuration.
func WithModelConfig(cfg model.ModelConfig) Option {
	return func(s *Session) { s.config = cfg }
}

// OnSettle registers fn to be called after every run settles, outside the
// session lock.
func OnSettle(fn func(*Run)) Option {
	return func(s *Session) { s.onSettle = append(s.onSettle, fn) }
}

// New creates a session with the default template.
func New(opts ...Option) *Session {
	sys := model.NewSystemMessage(DefaultSystemPrompt)
	sys.Editing = true
	return newSession(model.NewMessageList(sys), variables.New(), sources.New(), opts)
}

func newSession(tmpl *model.MessageList, vars *variables.Registry, srcs *sources.Registry, opts []Option) *Session {
	s := &Session{
		id:                 "sess_" + uuid.NewString(),
		template:           tmpl,
		conversation:       model.NewMessageList(),
		vars:               vars,
		sources:            srcs,
		config:             model.DefaultModelConfig(),
		resolveConcurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	s.log = s.log.With("session", s.id)
	if s.exec == nil {
		s.exec = executor.NewEcho(executor.DefaultEchoDelay)
	}
	if s.resolver == nil {
		s.resolver = resolve.NewHTTP(resolve.DefaultConfig(), s.log)
	}
	s.reconcileLocked()
	return s
}

// =============================================================================
// READS
// =============================================================================

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// State returns the current run state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return StateRunning
	}
	return StateIdle
}

// CurrentRun returns the in-flight run, or nil when idle.
func (s *Session) CurrentRun() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// LastRun returns the most recently settled run, or nil.
func (s *Session) LastRun() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Template returns the template messages in order.
func (s *Session) Template() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.template.All()
}

// Conversation returns the conversation messages in order.
func (s *Session) Conversation() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation.All()
}

// Variables returns the variables in placeholder order.
func (s *Session) Variables() []variables.Variable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vars.List()
}

// Sources returns the context sources in creation order.
func (s *Session) Sources() []sources.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sources.List()
}

// ModelConfig returns the model configuration.
func (s *Session) ModelConfig() model.ModelConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Tools returns the prompt tool names.
func (s *Session) Tools() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tools)
}

// SystemMessage returns the first system message of the template.
func (s *Session) SystemMessage() (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.template.FirstWithRole(model.RoleSystem)
}

// CheckInvariants verifies the editable-tail invariant and that the
// registry matches the system message placeholders.
func (s *Session) CheckInvariants() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkInvariantsLocked()
}

func (s *Session) checkInvariantsLocked() error {
	msgs := s.conversation.All()
	for i, msg := range msgs {
		if !msg.Editing {
			continue
		}
		if i != len(msgs)-1 || msg.Role != model.RoleUser {
			return fmt.Errorf("editing message %s is not the user tail", msg.ID)
		}
	}
	want := variables.New()
	want.Reconcile(s.systemTextLocked())
	if !slices.Equal(want.Keys(), s.vars.Keys()) {
		return fmt.Errorf("registry keys %v do not match placeholders %v", s.vars.Keys(), want.Keys())
	}
	return nil
}

// =============================================================================
// DISPATCH
// =============================================================================

// StartRun is shorthand for dispatching StartRun.
func (s *Session) StartRun(ctx context.Context) (*Run, error) {
	res, err := s.Dispatch(ctx, StartRun{})
	if err != nil {
		return nil, err
	}
	return res.Run, nil
}

// Dispatch applies cmd. It is the only way to mutate a session.
func (s *Session) Dispatch(ctx context.Context, cmd Command) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := cmd.(SetModelConfig); !ok && s.running {
		s.log.Debug("command rejected", "command", cmd.commandName(), "reason", "run in progress")
		return Result{}, ErrRunInProgress
	}

	res, err := s.applyLocked(ctx, cmd)
	if err != nil {
		s.log.Debug("command rejected", "command", cmd.commandName(), "error", err)
		return Result{}, err
	}
	return res, nil
}

func (s *Session) applyLocked(ctx context.Context, cmd Command) (Result, error) {
	switch c := cmd.(type) {
	case AddTemplateMessage:
		return s.addTemplateMessage(c)
	case DeleteTemplateMessage:
		return s.deleteTemplateMessage(c)
	case EditMessageContent:
		return s.editMessageContent(c)
	case EditMessageRole:
		return s.editMessageRole(c)
	case ReplaceTemplate:
		return s.replaceTemplate(c)
	case LoadPrompt:
		return s.loadPrompt(c)
	case SetVariableValue:
		return changed(s.vars.SetStaticValue(c.Key, c.Value))
	case SetVariableSourceKind:
		return changed(s.vars.SetSourceKind(c.Key, c.Kind))
	case BindVariableSource:
		return s.bindVariableSource(c)
	case RenameKey:
		return s.renameKey(c)
	case DeleteVariable:
		return s.deleteVariable(c)
	case CreateSource:
		src, err := s.sources.Create(c.Source)
		if err != nil {
			return Result{}, err
		}
		return Result{Changed: true, SourceID: src.ID}, nil
	case UpdateSource:
		src, err := s.sources.Update(c.ID, c.Patch)
		if err != nil {
			return Result{}, err
		}
		return Result{Changed: true, SourceID: src.ID}, nil
	case DeleteSource:
		if err := s.sources.Delete(c.ID); err != nil {
			return Result{}, err
		}
		return Result{Changed: true, Released: s.vars.ReleaseSource(c.ID)}, nil
	case AppendFollowUp:
		return s.appendFollowUp()
	case EditConversationMessage:
		return s.editConversationMessage(c)
	case DeleteConversationMessage:
		if !s.conversation.Remove(c.ID) {
			return Result{}, errs.NotFound(c.commandName(), "id", fmt.Sprintf("no conversation message %q", c.ID))
		}
		return Result{Changed: true}, nil
	case ClearConversation:
		wasEmpty := s.conversation.IsEmpty()
		s.conversation.Clear()
		return Result{Changed: !wasEmpty}, nil
	case SetModelConfig:
		return s.setModelConfig(c)
	case AddTool:
		return s.addTool(c)
	case DeleteTool:
		return s.deleteTool(c)
	case StartRun:
		return s.startRunLocked(ctx)
	default:
		return Result{}, errs.Validation("dispatch", "command", fmt.Sprintf("unsupported command %T", cmd))
	}
}

func changed(err error) (Result, error) {
	if err != nil {
		return Result{}, err
	}
	return Result{Changed: true}, nil
}

// =============================================================================
// TEMPLATE
// =============================================================================

// systemTextLocked returns the content of the first system message.
func (s *Session) systemTextLocked() string {
	sys, ok := s.template.FirstWithRole(model.RoleSystem)
	if !ok {
		return ""
	}
	return sys.Content
}

// reconcileLocked brings the registry in line with the system message.
func (s *Session) reconcileLocked() {
	s.vars.Reconcile(s.systemTextLocked())
}

func (s *Session) addTemplateMessage(c AddTemplateMessage) (Result, error) {
	if !c.Role.Selectable() {
		return Result{}, errs.Validation(c.commandName(), "role", fmt.Sprintf("role %q is not selectable", c.Role))
	}
	msg := model.NewMessage(c.Role, c.Content)
	msg.Editing = true
	s.template.Append(msg)
	s.reconcileLocked()
	return Result{Changed: true, MessageID: msg.ID}, nil
}

func (s *Session) deleteTemplateMessage(c DeleteTemplateMessage) (Result, error) {
	if _, ok := s.template.Get(c.ID); !ok {
		return Result{}, errs.NotFound(c.commandName(), "id", fmt.Sprintf("no template message %q", c.ID))
	}
	if s.template.Len() == 1 {
		return Result{}, errs.Validation(c.commandName(), "id", "the last template message cannot be deleted")
	}
	s.template.Remove(c.ID)
	s.reconcileLocked()
	return Result{Changed: true}, nil
}

func (s *Session) editMessageContent(c EditMessageContent) (Result, error) {
	if !s.template.Update(c.ID, func(m *model.Message) { m.Content = c.Content }) {
		return Result{}, errs.NotFound(c.commandName(), "id", fmt.Sprintf("no template message %q", c.ID))
	}
	s.reconcileLocked()
	return Result{Changed: true}, nil
}

func (s *Session) editMessageRole(c EditMessageRole) (Result, error) {
	if !c.Role.Selectable() {
		return Result{}, errs.Validation(c.commandName(), "role", fmt.Sprintf("role %q is not selectable", c.Role))
	}
	if !s.template.Update(c.ID, func(m *model.Message) { m.Role = c.Role }) {
		return Result{}, errs.NotFound(c.commandName(), "id", fmt.Sprintf("no template message %q", c.ID))
	}
	s.reconcileLocked()
	return Result{Changed: true}, nil
}

func (s *Session) replaceTemplate(c ReplaceTemplate) (Result, error) {
	next, err := buildTemplate(c.commandName(), c.Messages)
	if err != nil {
		return Result{}, err
	}
	s.template = next
	s.reconcileLocked()
	return Result{Changed: true}, nil
}

func (s *Session) loadPrompt(c LoadPrompt) (Result, error) {
	op := c.commandName()
	if err := c.ModelConfig.Validate(); err != nil {
		return Result{}, err
	}
	next, err := buildTemplate(op, c.Messages)
	if err != nil {
		return Result{}, err
	}

	vars := s.vars.Clone()
	sysText := ""
	if sys, ok := next.FirstWithRole(model.RoleSystem); ok {
		sysText = sys.Content
	}
	vars.Reconcile(sysText)

	for _, b := range c.Bindings {
		if _, ok := vars.Get(b.Key); !ok {
			continue
		}
		if err := vars.SetSourceKind(b.Key, b.SourceKind); err != nil {
			return Result{}, err
		}
		if !b.IsExternal() {
			if err := vars.SetStaticValue(b.Key, b.StaticValue); err != nil {
				return Result{}, err
			}
			continue
		}
		id := b.ExternalSourceID
		if !s.sources.Has(id) {
			id = ""
		}
		if err := vars.BindSource(b.Key, id); err != nil {
			return Result{}, err
		}
	}

	s.template = next
	s.vars = vars
	s.config = c.ModelConfig
	return Result{Changed: true}, nil
}

// buildTemplate validates msgs as a complete template.
func buildTemplate(op string, msgs []model.Message) (*model.MessageList, error) {
	if len(msgs) == 0 {
		return nil, errs.Validation(op, "messages", "template must have at least one message")
	}
	next := model.NewMessageList()
	for i, msg := range msgs {
		if !msg.Role.Selectable() {
			return nil, errs.Validation(op, "role", fmt.Sprintf("message %d: role %q is not selectable", i, msg.Role))
		}
		if !next.Append(msg) {
			return nil, errs.Validation(op, "id", fmt.Sprintf("duplicate message id %q", msg.ID))
		}
	}
	return next, nil
}

// =============================================================================
// VARIABLES
// =============================================================================

func (s *Session) bindVariableSource(c BindVariableSource) (Result, error) {
	if !s.sources.Has(c.SourceID) {
		return Result{}, errs.NotFound(c.commandName(), "source_id", fmt.Sprintf("no source %q", c.SourceID))
	}
	return changed(s.vars.BindSource(c.Key, c.SourceID))
}

func (s *Session) renameKey(c RenameKey) (Result, error) {
	sys, ok := s.template.FirstWithRole(model.RoleSystem)
	if !ok {
		return Result{}, errs.NotFound(c.commandName(), "template", "no system message")
	}
	text, err := s.vars.Rename(c.OldKey, c.NewKey, sys.Content)
	if err != nil {
		return Result{}, err
	}
	s.template.Update(sys.ID, func(m *model.Message) { m.Content = text })
	return Result{Changed: true, Key: strings.TrimSpace(c.NewKey)}, nil
}

func (s *Session) deleteVariable(c DeleteVariable) (Result, error) {
	sys, ok := s.template.FirstWithRole(model.RoleSystem)
	if !ok {
		return Result{}, errs.NotFound(c.commandName(), "template", "no system message")
	}
	text, err := s.vars.Delete(c.Key, sys.Content)
	if err != nil {
		return Result{}, err
	}
	s.template.Update(sys.ID, func(m *model.Message) { m.Content = text })
	return Result{Changed: true}, nil
}

// =============================================================================
// CONVERSATION
// =============================================================================

func (s *Session) appendFollowUp() (Result, error) {
	last, ok := s.conversation.Last()
	if !ok {
		return Result{}, errs.Validation(AppendFollowUp{}.commandName(), "conversation", "conversation is empty; start a run first")
	}
	if last.Role == model.RoleUser && last.Editing {
		return Result{Changed: false, MessageID: last.ID}, nil
	}
	msg := model.NewEditingUserMessage()
	s.conversation.Append(msg)
	return Result{Changed: true, MessageID: msg.ID}, nil
}

func (s *Session) editConversationMessage(c EditConversationMessage) (Result, error) {
	msg, ok := s.conversation.Get(c.ID)
	if !ok {
		return Result{}, errs.NotFound(c.commandName(), "id", fmt.Sprintf("no conversation message %q", c.ID))
	}
	if !msg.Editing {
		return Result{}, errs.Validation(c.commandName(), "id", "only the editing message can be changed")
	}
	s.conversation.Update(c.ID, func(m *model.Message) { m.Content = c.Content })
	return Result{Changed: true}, nil
}

// =============================================================================
// CONFIGURATION AND TOOLS
// =============================================================================

func (s *Session) setModelConfig(c SetModelConfig) (Result, error) {
	next := c.Patch.Apply(s.config)
	if err := next.Validate(); err != nil {
		return Result{}, err
	}
	s.config = next
	return Result{Changed: true}, nil
}

func (s *Session) addTool(c AddTool) (Result, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return Result{}, errs.Validation(c.commandName(), "name", "must not be empty")
	}
	if slices.Contains(s.tools, name) {
		return Result{}, errs.Validation(c.commandName(), "name", fmt.Sprintf("tool %q already added", name))
	}
	s.tools = append(s.tools, name)
	return Result{Changed: true}, nil
}

func (s *Session) deleteTool(c DeleteTool) (Result, error) {
	i := slices.Index(s.tools, c.Name)
	if i < 0 {
		return Result{}, errs.NotFound(c.commandName(), "name", fmt.Sprintf("no tool %q", c.Name))
	}
	s.tools = slices.Delete(s.tools, i, i+1)
	if s.config.ToolChoice == c.Name {
		s.config.ToolChoice = model.ToolChoiceAuto
	}
	return Result{Changed: true}, nil
}
