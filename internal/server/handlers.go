// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/promptlab/internal/errs"
	"github.com/jeranaias/promptlab/internal/model"
	"github.com/jeranaias/promptlab/internal/session"
	"github.com/jeranaias/promptlab/internal/sources"
	"github.com/jeranaias/promptlab/internal/variables"
)

// ============================================================================
// RESPONSE TYPES
// ============================================================================

// RunView describes a run.
type RunView struct {
	ID         string         `json:"id"`
	Flavor     session.Flavor `json:"flavor"`
	StartedAt  time.Time      `json:"started_at"`
	Settled    bool           `json:"settled"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Error      string         `json:"error,omitempty"`
	Reply      *model.Message `json:"reply,omitempty"`
}

func viewRun(r *session.Run) *RunView {
	if r == nil {
		return nil
	}
	v := &RunView{ID: r.ID, Flavor: r.Flavor, StartedAt: r.StartedAt}
	if res, ok := r.Result(); ok {
		v.Settled = true
		v.DurationMs = res.Duration.Milliseconds()
		if res.Err != nil {
			v.Error = res.Err.Error()
		} else {
			reply := res.Reply
			v.Reply = &reply
		}
	}
	return v
}

// StateResponse is the full session view.
type StateResponse struct {
	ID           string               `json:"id"`
	State        session.State        `json:"state"`
	CurrentRun   *RunView             `json:"current_run,omitempty"`
	LastRun      *RunView             `json:"last_run,omitempty"`
	Template     []model.Message      `json:"template"`
	Conversation []model.Message      `json:"conversation"`
	Variables    []variables.Variable `json:"variables"`
	Sources      []sources.Source     `json:"sources"`
	ModelConfig  model.ModelConfig    `json:"model_config"`
	Tools        []string             `json:"tools"`
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	State   session.State `json:"state"`
	Uptime  string        `json:"uptime"`
}

// ============================================================================
// READ HANDLERS
// ============================================================================

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		State:   s.sess.State(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, StateResponse{
		ID:           s.sess.ID(),
		State:        s.sess.State(),
		CurrentRun:   viewRun(s.sess.CurrentRun()),
		LastRun:      viewRun(s.sess.LastRun()),
		Template:     s.sess.Template(),
		Conversation: s.sess.Conversation(),
		Variables:    s.sess.Variables(),
		Sources:      s.sess.Sources(),
		ModelConfig:  s.sess.ModelConfig(),
		Tools:        s.sess.Tools(),
	})
}

func (s *Server) handleGetTemplate(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": s.sess.Template()})
}

func (s *Server) handleGetVariables(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"variables": s.sess.Variables()})
}

func (s *Server) handleGetSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": s.sess.Sources()})
}

func (s *Server) handleGetConversation(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": s.sess.Conversation()})
}

// ============================================================================
// TEMPLATE HANDLERS
// ============================================================================

type messageRequest struct {
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
}

type replaceTemplateRequest struct {
	Messages []messageRequest `json:"messages"`
}

func (s *Server) handleReplaceTemplate(c *gin.Context) {
	var req replaceTemplateRequest
	if !bind(c, &req) {
		return
	}
	msgs := make([]model.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = model.NewMessage(m.Role, m.Content)
	}
	s.dispatch(c, http.StatusOK, session.ReplaceTemplate{Messages: msgs})
}

func (s *Server) handleAddTemplateMessage(c *gin.Context) {
	var req messageRequest
	if !bind(c, &req) {
		return
	}
	s.dispatch(c, http.StatusCreated, session.AddTemplateMessage{Role: req.Role, Content: req.Content})
}

// editMessageRequest changes either the content or the role.
type editMessageRequest struct {
	Content *string     `json:"content"`
	Role    *model.Role `json:"role"`
}

func (s *Server) handleEditTemplateMessage(c *gin.Context) {
	var req editMessageRequest
	if !bind(c, &req) {
		return
	}
	id := c.Param("id")
	switch {
	case req.Content != nil && req.Role == nil:
		s.dispatch(c, http.StatusOK, session.EditMessageContent{ID: id, Content: *req.Content})
	case req.Role != nil && req.Content == nil:
		s.dispatch(c, http.StatusOK, session.EditMessageRole{ID: id, Role: *req.Role})
	default:
		s.fail(c, errs.Validation("edit message", "", "set exactly one of content or role"))
	}
}

func (s *Server) handleDeleteTemplateMessage(c *gin.Context) {
	s.dispatch(c, http.StatusOK, session.DeleteTemplateMessage{ID: c.Param("id")})
}

// ============================================================================
// VARIABLE HANDLERS
// ============================================================================

// editVariableRequest changes exactly one aspect of a binding.
type editVariableRequest struct {
	Value      *string               `json:"value"`
	SourceKind *variables.SourceKind `json:"source_kind"`
	SourceID   *string               `json:"source_id"`
}

func (s *Server) handleEditVariable(c *gin.Context) {
	var req editVariableRequest
	if !bind(c, &req) {
		return
	}
	key := c.Param("key")
	var cmds []session.Command
	if req.Value != nil {
		cmds = append(cmds, session.SetVariableValue{Key: key, Value: *req.Value})
	}
	if req.SourceKind != nil {
		cmds = append(cmds, session.SetVariableSourceKind{Key: key, Kind: *req.SourceKind})
	}
	if req.SourceID != nil {
		cmds = append(cmds, session.BindVariableSource{Key: key, SourceID: *req.SourceID})
	}
	if len(cmds) != 1 {
		s.fail(c, errs.Validation("edit variable", "", "set exactly one of value, source_kind or source_id"))
		return
	}
	s.dispatch(c, http.StatusOK, cmds[0])
}

type renameRequest struct {
	NewKey string `json:"new_key"`
}

func (s *Server) handleRenameVariable(c *gin.Context) {
	var req renameRequest
	if !bind(c, &req) {
		return
	}
	s.dispatch(c, http.StatusOK, session.RenameKey{OldKey: c.Param("key"), NewKey: req.NewKey})
}

func (s *Server) handleDeleteVariable(c *gin.Context) {
	s.dispatch(c, http.StatusOK, session.DeleteVariable{Key: c.Param("key")})
}

// ============================================================================
// SOURCE HANDLERS
// ============================================================================

func (s *Server) handleCreateSource(c *gin.Context) {
	var src sources.Source
	if !bind(c, &src) {
		return
	}
	s.dispatch(c, http.StatusCreated, session.CreateSource{Source: src})
}

func (s *Server) handleUpdateSource(c *gin.Context) {
	var patch sources.Patch
	if !bind(c, &patch) {
		return
	}
	s.dispatch(c, http.StatusOK, session.UpdateSource{ID: c.Param("id"), Patch: patch})
}

func (s *Server) handleDeleteSource(c *gin.Context) {
	s.dispatch(c, http.StatusOK, session.DeleteSource{ID: c.Param("id")})
}

// ============================================================================
// CONVERSATION HANDLERS
// ============================================================================

func (s *Server) handleFollowUp(c *gin.Context) {
	s.dispatch(c, http.StatusOK, session.AppendFollowUp{})
}

type contentRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleEditConversationMessage(c *gin.Context) {
	var req contentRequest
	if !bind(c, &req) {
		return
	}
	s.dispatch(c, http.StatusOK, session.EditConversationMessage{ID: c.Param("id"), Content: req.Content})
}

func (s *Server) handleDeleteConversationMessage(c *gin.Context) {
	s.dispatch(c, http.StatusOK, session.DeleteConversationMessage{ID: c.Param("id")})
}

func (s *Server) handleClearConversation(c *gin.Context) {
	s.dispatch(c, http.StatusOK, session.ClearConversation{})
}

// ============================================================================
// CONFIG AND TOOL HANDLERS
// ============================================================================

func (s *Server) handleSetModelConfig(c *gin.Context) {
	var patch model.ModelConfigPatch
	if !bind(c, &patch) {
		return
	}
	s.dispatch(c, http.StatusOK, session.SetModelConfig{Patch: patch})
}

type toolRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleAddTool(c *gin.Context) {
	var req toolRequest
	if !bind(c, &req) {
		return
	}
	s.dispatch(c, http.StatusCreated, session.AddTool{Name: req.Name})
}

func (s *Server) handleDeleteTool(c *gin.Context) {
	s.dispatch(c, http.StatusOK, session.DeleteTool{Name: c.Param("name")})
}

// ============================================================================
// RUN HANDLER
// ============================================================================

// RunResponse is returned by POST /api/run.
type RunResponse struct {
	Run          *RunView        `json:"run"`
	Conversation []model.Message `json:"conversation,omitempty"`
}

// handleRun starts a run and waits for it to settle. A run that outlives the
// wait keeps going; the client gets 202 and can poll /api/state.
func (s *Server) handleRun(c *gin.Context) {
	run, err := s.sess.StartRun(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.runWait)
	defer cancel()
	_, _ = run.Wait(ctx)
	res, settled := run.Result()
	switch {
	case !settled:
		c.JSON(http.StatusAccepted, RunResponse{Run: viewRun(run)})
	case res.Err != nil:
		s.fail(c, res.Err)
	default:
		c.JSON(http.StatusOK, RunResponse{Run: viewRun(run), Conversation: s.sess.Conversation()})
	}
}
