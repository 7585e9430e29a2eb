// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/promptlab/internal/config"
	"github.com/jeranaias/promptlab/internal/promptfile"
	"github.com/jeranaias/promptlab/internal/session"
)

const chatHelp = `Commands:
  /help, /h      Show this help
  /history       Show the conversation
  /clear         Clear the conversation
  /run           Start a new initial run after /clear
  /save <file>   Write the template and bindings to a prompt file
  /quit, /q      Exit (Ctrl+D also exits)
Anything else is sent as the next user turn.`

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader reads one line of input after showing a prompt.
type lineReader interface {
	Prompt(prompt string) (string, error)
}

// ChatInput provides line editing and persistent history for chat.
type ChatInput struct {
	line        *liner.State
	historyFile string
}

// NewChatInput creates a liner-backed reader and loads saved history.
func NewChatInput() *ChatInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	in := &ChatInput{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(in.historyFile); err == nil {
		in.line.ReadHistory(f)
		f.Close()
	}
	return in
}

// Prompt reads a line and records non-empty input in history.
func (c *ChatInput) Prompt(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (c *ChatInput) Close() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

// =============================================================================
// COMMAND
// =============================================================================

func (a *app) chatCmd() *cobra.Command {
	var item string
	cmd := &cobra.Command{
		Use:   "chat <file>",
		Short: "Run a prompt file, then continue the conversation",
		Long: `Perform an initial run of the prompt file and keep reading follow-up turns.
Each line you enter becomes the next user message and is sent with the
whole conversation. With --item, the session is saved to that workspace
item after every run.

` + chatHelp,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			if err := a.checkExecutor(ctx); err != nil {
				return err
			}

			var extra []session.Option
			var sess *session.Session
			if item != "" {
				ws, store, err := a.openWorkspace(ctx)
				if err != nil {
					return err
				}
				defer store.Close()
				extra = append(extra, session.OnSettle(ws.AutosaveHook(ctx, item, func() *session.Session { return sess })))
			}
			_, s, err := a.loadSession(args[0], extra...)
			if err != nil {
				return err
			}
			sess = s

			in := NewChatInput()
			defer in.Close()
			return chatLoop(ctx, s, in, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&item, "item", "", "Autosave the session to this workspace item")
	return cmd
}

// =============================================================================
// REPL
// =============================================================================

// chatLoop performs the initial run, then reads follow-ups until EOF or
// /quit.
func chatLoop(ctx context.Context, s *session.Session, in lineReader, out io.Writer) error {
	fmt.Fprintln(out, titleStyle.Render("promptlab chat")+labelStyle.Render("  (type /help for commands)"))
	fmt.Fprintln(out)

	if err := chatRun(ctx, s, out, true); err != nil {
		return err
	}

	for {
		input, err := in.Prompt("you> ")
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := chatCommand(ctx, s, input, out)
			if err != nil {
				fmt.Fprintln(out, errorStyle.Render("Error: ")+err.Error())
			}
			if quit {
				return nil
			}
			continue
		}

		if err := followUp(ctx, s, input); err != nil {
			fmt.Fprintln(out, errorStyle.Render("Error: ")+err.Error())
			continue
		}
		if err := chatRun(ctx, s, out, false); err != nil {
			fmt.Fprintln(out, errorStyle.Render("Error: ")+err.Error())
		}
	}
}

// followUp opens (or reuses) the editing tail and fills it with text.
func followUp(ctx context.Context, s *session.Session, text string) error {
	if len(s.Conversation()) == 0 {
		return errors.New("the conversation is empty; use /run to start it")
	}
	res, err := s.Dispatch(ctx, session.AppendFollowUp{})
	if err != nil {
		return err
	}
	_, err = s.Dispatch(ctx, session.EditConversationMessage{ID: res.MessageID, Content: text})
	return err
}

// chatRun runs once and prints either the whole conversation or the reply.
func chatRun(ctx context.Context, s *session.Session, out io.Writer, full bool) error {
	reply, err := runOnce(ctx, s)
	if err != nil {
		return err
	}
	if full {
		printMessages(out, s.Conversation())
	} else {
		fmt.Fprintln(out, roleStyle(reply.Role).Render("["+reply.Role.DisplayName()+"]"))
		fmt.Fprintln(out, reply.Content)
	}
	fmt.Fprintln(out)
	return nil
}

// chatCommand handles a slash command and reports whether to exit.
func chatCommand(ctx context.Context, s *session.Session, input string, out io.Writer) (bool, error) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/q", "/exit":
		return true, nil
	case "/help", "/h":
		fmt.Fprintln(out, chatHelp)
	case "/history":
		printMessages(out, s.Conversation())
		fmt.Fprintln(out)
	case "/clear":
		if _, err := s.Dispatch(ctx, session.ClearConversation{}); err != nil {
			return false, err
		}
		fmt.Fprintln(out, labelStyle.Render("Conversation cleared. Use /run to start again."))
	case "/run":
		if len(s.Conversation()) > 0 {
			return false, errors.New("the conversation has already started; type a message or /clear first")
		}
		return false, chatRun(ctx, s, out, true)
	case "/save":
		if len(fields) != 2 {
			return false, errors.New("usage: /save <file>")
		}
		name := strings.TrimSuffix(filepath.Base(fields[1]), filepath.Ext(fields[1]))
		if err := promptfile.Save(fields[1], promptfile.FromSession(s, name)); err != nil {
			return false, err
		}
		fmt.Fprintln(out, labelStyle.Render("Saved "+fields[1]))
	default:
		fmt.Fprintln(out, warningStyle.Render("Unknown command "+fields[0]+"; type /help"))
	}
	return false, nil
}
