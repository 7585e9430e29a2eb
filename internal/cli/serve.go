// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/promptlab/internal/logger"
	"github.com/jeranaias/promptlab/internal/promptfile"
	"github.com/jeranaias/promptlab/internal/server"
	"github.com/jeranaias/promptlab/internal/session"
)

func (a *app) serveCmd() *cobra.Command {
	var (
		addr    string
		item    string
		noWatch bool
	)
	cmd := &cobra.Command{
		Use:   "serve <file>",
		Short: "Expose a prompt session over HTTP",
		Long: `Load the prompt file into a session and serve it as a JSON API under /api.
The file is watched; when it changes, the template, bindings and model
settings of the live session are updated. With --item, the session is saved
to that workspace item after every run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			var extra []session.Option
			var sess *session.Session
			if item != "" {
				ws, store, err := a.openWorkspace(ctx)
				if err != nil {
					return err
				}
				defer store.Close()
				extra = append(extra, session.OnSettle(ws.AutosaveHook(context.WithoutCancel(ctx), item, func() *session.Session { return sess })))
			}
			_, s, err := a.loadSession(args[0], extra...)
			if err != nil {
				return err
			}
			sess = s

			if !noWatch {
				w, err := promptfile.NewWatcher(args[0], promptfile.DefaultDebounce, reloadInto(ctx, s, a.log), a.log)
				if err != nil {
					return err
				}
				if err := w.Start(); err != nil {
					w.Close()
					return err
				}
				defer w.Close()
			}

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			srv := server.New(s, server.WithAddr(addr), server.WithLogger(a.log))
			fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("promptlab")+labelStyle.Render(" serving "+args[0]+" on http://"+addr+"/api"))
			return serveUntilDone(ctx, srv)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	cmd.Flags().StringVar(&item, "item", "", "Autosave the session to this workspace item")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload the file on change")
	return cmd
}

// reloadInto returns a watcher callback that applies each reloaded file to s.
func reloadInto(ctx context.Context, s *session.Session, log *logger.Logger) func(*promptfile.File, error) {
	return func(f *promptfile.File, err error) {
		if err != nil {
			log.Warn("prompt file reload failed", "error", err)
			return
		}
		for {
			err := promptfile.Apply(ctx, s, f)
			if !errors.Is(err, session.ErrRunInProgress) {
				if err != nil {
					log.Warn("prompt file not applied", "error", err)
					return
				}
				log.Info("prompt file reloaded", "name", f.Name)
				return
			}
			// Reapply once the in-flight run settles.
			run := s.CurrentRun()
			if run == nil {
				continue
			}
			log.Debug("prompt file reload waiting for run", "run", run.ID)
			select {
			case <-run.Done():
			case <-ctx.Done():
				log.Warn("prompt file not applied", "error", ctx.Err())
				return
			}
		}
	}
}

// serveUntilDone runs srv until ctx ends, then shuts it down gracefully.
func serveUntilDone(ctx context.Context, srv *server.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
