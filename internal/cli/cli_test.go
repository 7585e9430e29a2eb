// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/promptlab/internal/executor"
	"github.com/jeranaias/promptlab/internal/logger"
	"github.com/jeranaias/promptlab/internal/model"
	"github.com/jeranaias/promptlab/internal/promptfile"
	"github.com/jeranaias/promptlab/internal/session"
)

// =============================================================================
// HELPERS
// =============================================================================

const basicPrompt = `
name: Greeter
template:
  - role: system
    content: "Hi {{name}}, let's talk about {{topic}}. Bye {{name}}."
  - role: user
    content: "Question about {{extra}}"
variables:
  - key: name
    value: Ada
  - key: topic
    value: Go
`

// env is an isolated config and data directory.
type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T) *env {
	return newEnvWithExecutor(t, "kind = \"echo\"\necho_delay_ms = 0")
}

// newEnvWithExecutor writes executor as the body of the [executor] table.
func newEnvWithExecutor(t *testing.T, executor string) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.toml")
	content := fmt.Sprintf(`[executor]
%s

[storage]
driver = "file"
dir = %q

[logging]
level = "error"
`, executor, filepath.Join(dir, "data"))
	require.NoError(t, os.WriteFile(cfg, []byte(content), 0600))
	return &env{dir: dir, config: cfg}
}

func (e *env) writePrompt(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// run executes the command tree and returns stdout.
func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", e.config}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e *env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, "promptlab %s", strings.Join(args, " "))
	return out
}

// =============================================================================
// PROMPT COMMANDS
// =============================================================================

func TestExtract(t *testing.T) {
	e := newEnv(t)
	file := e.writePrompt(t, "p.yaml", basicPrompt)

	assert.Equal(t, "name\ntopic\n", e.mustRun(t, "extract", file))
}

func TestExtract_Long(t *testing.T) {
	e := newEnv(t)
	file := e.writePrompt(t, "p.yaml", basicPrompt)

	out := e.mustRun(t, "extract", "--long", file)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "Ada")
	assert.Contains(t, out, "static")
}

func TestExtract_All(t *testing.T) {
	e := newEnv(t)
	file := e.writePrompt(t, "p.yaml", basicPrompt)

	assert.Equal(t, "name\ntopic\nextra\n", e.mustRun(t, "extract", "--all", file))
}

func TestExtract_MissingFile(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "extract", filepath.Join(e.dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestRender_ResolvesSources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "  sunny\n")
	}))
	defer srv.Close()

	e := newEnv(t)
	file := e.writePrompt(t, "w.yaml", fmt.Sprintf(`
template:
  - role: system
    content: "Weather: {{weather}}"
variables:
  - key: weather
    source: wx
sources:
  - id: wx
    name: Weather
    endpoint: %s
`, srv.URL))

	out := e.mustRun(t, "render", file)
	assert.Contains(t, out, "Weather: sunny")
	assert.Contains(t, out, "[System]")
}

func TestRender_JSON(t *testing.T) {
	e := newEnv(t)
	file := e.writePrompt(t, "p.yaml", basicPrompt)

	out := e.mustRun(t, "render", "--json", file)
	var turns []model.Turn
	require.NoError(t, json.Unmarshal([]byte(out), &turns))
	require.Len(t, turns, 2)
	assert.Equal(t, model.Turn{Role: model.RoleSystem, Content: "Hi Ada, let's talk about Go. Bye Ada."}, turns[0])
	assert.Equal(t, "Question about ", turns[1].Content, "keys outside the system message render empty")
}

func TestRun_PrintsConversation(t *testing.T) {
	e := newEnv(t)
	file := e.writePrompt(t, "p.yaml", basicPrompt)

	out := e.mustRun(t, "run", file)
	assert.Contains(t, out, "[Assistant]")
	assert.Contains(t, out, "Echoed response:")
	assert.Contains(t, out, "system: Hi Ada, let's talk about Go. Bye Ada.")
}

func TestRun_RequiresSystemContent(t *testing.T) {
	e := newEnv(t)
	file := e.writePrompt(t, "p.yaml", `
template:
  - role: system
    content: "   "
`)
	_, err := e.run(t, "run", file)
	assert.ErrorIs(t, err, session.ErrNoSystemMessage)
}

// =============================================================================
// OLLAMA
// =============================================================================

func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Ollama is running")
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"llama3:8b","size":4661224676,"modified_at":"2025-01-02T03:04:05Z"}]}`)
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"model":"llama3:8b","message":{"role":"assistant","content":"hello from llama"},"done":true}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestModels(t *testing.T) {
	srv := fakeOllama(t)
	e := newEnvWithExecutor(t, fmt.Sprintf("kind = \"ollama\"\nollama_url = %q", srv.URL))

	out := e.mustRun(t, "models")
	assert.Contains(t, out, "llama3:8b")
	assert.Contains(t, out, "4.3 GB")
	assert.Contains(t, out, "2025-01-02")
}

func TestRun_Ollama(t *testing.T) {
	srv := fakeOllama(t)
	e := newEnvWithExecutor(t, fmt.Sprintf("kind = \"ollama\"\nollama_url = %q", srv.URL))
	file := e.writePrompt(t, "p.yaml", basicPrompt)

	assert.Contains(t, e.mustRun(t, "run", file), "hello from llama")
}

func TestRun_OllamaUnreachable(t *testing.T) {
	srv := fakeOllama(t)
	url := srv.URL
	srv.Close()
	e := newEnvWithExecutor(t, fmt.Sprintf("kind = \"ollama\"\nollama_url = %q", url))
	file := e.writePrompt(t, "p.yaml", basicPrompt)

	_, err := e.run(t, "run", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

// =============================================================================
// WORKSPACE COMMANDS
// =============================================================================

func TestFoldersAndItems(t *testing.T) {
	e := newEnv(t)

	assert.Contains(t, e.mustRun(t, "folders", "list"), "No folders.")

	folderID := strings.TrimSpace(e.mustRun(t, "folders", "add", "My", "prompts"))
	require.NotEmpty(t, folderID)
	out := e.mustRun(t, "folders", "list")
	assert.Contains(t, out, "My prompts")
	assert.Contains(t, out, "prompt")

	_, err := e.run(t, "folders", "add", "x", "--category", "music")
	assert.Error(t, err)

	itemID := strings.TrimSpace(e.mustRun(t, "items", "add", folderID, "Greeter", "--description", "says hi"))
	require.NotEmpty(t, itemID)
	assert.Contains(t, e.mustRun(t, "items", "list", folderID), "Greeter")

	e.mustRun(t, "items", "rm", itemID)
	assert.Contains(t, e.mustRun(t, "items", "list"), "No items.")

	e.mustRun(t, "folders", "rm", folderID)
	assert.Contains(t, e.mustRun(t, "folders", "list"), "No folders.")
}

func TestRun_SavesToItem(t *testing.T) {
	e := newEnv(t)
	file := e.writePrompt(t, "p.yaml", basicPrompt)
	folderID := strings.TrimSpace(e.mustRun(t, "folders", "add", "Work"))
	itemID := strings.TrimSpace(e.mustRun(t, "items", "add", folderID, "Greeter"))

	e.mustRun(t, "run", "--item", itemID, file)

	out := e.mustRun(t, "items", "show", itemID)
	assert.Contains(t, out, "Template")
	assert.Contains(t, out, "Conversation")
	assert.Contains(t, out, "Echoed response:")
}

func TestItems_SaveAndExport(t *testing.T) {
	e := newEnv(t)
	file := e.writePrompt(t, "p.yaml", basicPrompt)
	folderID := strings.TrimSpace(e.mustRun(t, "folders", "add", "Work"))
	itemID := strings.TrimSpace(e.mustRun(t, "items", "add", folderID, "Greeter"))

	e.mustRun(t, "items", "save", itemID, file)

	exported := filepath.Join(e.dir, "out.yaml")
	e.mustRun(t, "items", "export", itemID, exported)

	f, err := promptfile.Load(exported)
	require.NoError(t, err)
	assert.Equal(t, "Greeter", f.Name)
	require.Len(t, f.Template, 2)
	assert.Equal(t, "Hi {{name}}, let's talk about {{topic}}. Bye {{name}}.", f.Template[0].Content)

	_, err = e.run(t, "items", "save", "missing", file)
	assert.Error(t, err)
}

// =============================================================================
// CONFIG COMMAND
// =============================================================================

func TestConfigCommand(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, "echo\n", e.mustRun(t, "config", "get", "executor.kind"))
	assert.Equal(t, e.config+"\n", e.mustRun(t, "config", "path"))
	assert.Contains(t, e.mustRun(t, "config", "show"), "[resolver]")
	assert.Contains(t, e.mustRun(t, "config", "keys"), "storage.driver\n")

	e.mustRun(t, "config", "set", "model.temperature", "0.2")
	assert.Equal(t, "0.2\n", e.mustRun(t, "config", "get", "model.temperature"))

	_, err := e.run(t, "config", "set", "model.temperature", "9")
	assert.Error(t, err, "out of range values are not written")
	assert.Equal(t, "0.2\n", e.mustRun(t, "config", "get", "model.temperature"))

	_, err = e.run(t, "config", "get", "nope.key")
	assert.Error(t, err)
}

func TestInvalidConfigFile(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.WriteFile(e.config, []byte("[executor]\nkind = \"magic\"\n"), 0600))
	_, err := e.run(t, "config", "show")
	assert.Error(t, err)
}

// =============================================================================
// CHAT LOOP
// =============================================================================

// scriptedInput replays lines, then reports EOF.
type scriptedInput struct {
	lines []string
}

func (s *scriptedInput) Prompt(string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	if line == "^C" {
		return "", liner.ErrPromptAborted
	}
	return line, nil
}

func newChatSession(t *testing.T) *session.Session {
	t.Helper()
	f, err := promptfile.Parse([]byte(basicPrompt))
	require.NoError(t, err)
	s, err := f.NewSession(session.WithExecutor(executor.NewEcho(0)))
	require.NoError(t, err)
	return s
}

func TestChatLoop_FollowUps(t *testing.T) {
	s := newChatSession(t)
	in := &scriptedInput{lines: []string{"/help", "", "^C", "tell me more", "/history", "/quit", "never read"}}
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), s, in, &out))

	conv := s.Conversation()
	require.Len(t, conv, 5, "system, user, reply, follow-up, reply")
	assert.Equal(t, "tell me more", conv[3].Content)
	assert.False(t, conv[3].Editing)
	assert.Equal(t, model.RoleAssistant, conv[4].Role)
	assert.Contains(t, out.String(), "Commands:")
	assert.Equal(t, []string{"never read"}, in.lines)
}

func TestChatLoop_ClearAndRerun(t *testing.T) {
	s := newChatSession(t)
	in := &scriptedInput{lines: []string{"/clear", "hello?", "/run", "/run", "/bogus"}}
	var out bytes.Buffer

	require.NoError(t, chatLoop(context.Background(), s, in, &out))

	text := out.String()
	assert.Contains(t, text, "Conversation cleared.")
	assert.Contains(t, text, "use /run to start it")
	assert.Contains(t, text, "already started")
	assert.Contains(t, text, "Unknown command /bogus")
	assert.Len(t, s.Conversation(), 3)
}

func TestChatLoop_Save(t *testing.T) {
	s := newChatSession(t)
	path := filepath.Join(t.TempDir(), "saved.yaml")
	in := &scriptedInput{lines: []string{"/save " + path}}

	require.NoError(t, chatLoop(context.Background(), s, in, io.Discard))

	f, err := promptfile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", f.Name)
	assert.Len(t, f.Template, 2)
}

func TestReloadInto_WaitsForRun(t *testing.T) {
	release := make(chan struct{})
	exec := executor.Func(func(ctx context.Context, req executor.Request) (executor.Response, error) {
		<-release
		return executor.Response{Role: model.RoleAssistant, Content: "ok"}, nil
	})
	s := session.New(session.WithExecutor(exec))
	run, err := s.StartRun(context.Background())
	require.NoError(t, err)

	f, err := promptfile.Parse([]byte("template:\n  - role: system\n    content: \"reloaded {{k}}\"\n"))
	require.NoError(t, err)

	applied := make(chan struct{})
	go func() {
		reloadInto(context.Background(), s, logger.Nop())(f, nil)
		close(applied)
	}()

	select {
	case <-applied:
		t.Fatal("reload applied while a run was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-applied:
	case <-time.After(5 * time.Second):
		t.Fatal("reload not applied after the run settled")
	}
	_, err = run.Wait(context.Background())
	require.NoError(t, err)

	sys, _ := s.SystemMessage()
	assert.Equal(t, "reloaded {{k}}", sys.Content)
	assert.Len(t, s.Conversation(), 2, "settled run kept")
}
