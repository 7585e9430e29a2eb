// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"

	"github.com/jeranaias/promptlab/internal/executor"
	"github.com/jeranaias/promptlab/internal/ollama"
	"github.com/jeranaias/promptlab/internal/promptfile"
	"github.com/jeranaias/promptlab/internal/resolve"
	"github.com/jeranaias/promptlab/internal/session"
	"github.com/jeranaias/promptlab/internal/storage"
	"github.com/jeranaias/promptlab/internal/workspace"
)

// =============================================================================
// COMPONENT WIRING
// =============================================================================

// newExecutor builds the run executor selected by executor.kind.
func (a *app) newExecutor() executor.Executor {
	switch a.cfg.Executor.Kind {
	case "ollama":
		return executor.NewOllama(a.ollamaClient(), a.log)
	default:
		return executor.NewEcho(a.cfg.EchoDelay())
	}
}

func (a *app) ollamaClient() *ollama.Client {
	return ollama.NewClient(&ollama.ClientConfig{
		BaseURL: a.cfg.Executor.OllamaURL,
		Timeout: a.cfg.ExecutorTimeout(),
	})
}

// checkExecutor fails fast when the Ollama server is down, rather than
// after the template has been rendered and sources fetched.
func (a *app) checkExecutor(ctx context.Context) error {
	if a.cfg.Executor.Kind != "ollama" {
		return nil
	}
	client := a.ollamaClient()
	if err := client.CheckRunning(ctx); err != nil {
		return fmt.Errorf("ollama is not reachable at %s: %w", client.BaseURL(), err)
	}
	return nil
}

// newResolver builds the shared external value resolver.
func (a *app) newResolver() *resolve.HTTPResolver {
	return resolve.NewHTTP(a.cfg.ResolverSettings(), a.log)
}

// sessionOptions returns the options every session in this process shares.
func (a *app) sessionOptions(extra ...session.Option) []session.Option {
	opts := []session.Option{
		session.WithExecutor(a.newExecutor()),
		session.WithResolver(a.newResolver()),
		session.WithResolveConcurrency(a.cfg.Resolver.Concurrency),
		session.WithLogger(a.log),
	}
	return append(opts, extra...)
}

// loadSession reads a prompt file and builds a session from it.
func (a *app) loadSession(path string, extra ...session.Option) (*promptfile.File, *session.Session, error) {
	f, err := promptfile.Load(path)
	if err != nil {
		return nil, nil, err
	}
	s, err := f.NewSession(a.sessionOptions(extra...)...)
	if err != nil {
		return nil, nil, fmt.Errorf("load %s: %w", path, err)
	}
	return f, s, nil
}

// openWorkspace opens the configured store and the owner's folder tree.
// The caller closes the returned store.
func (a *app) openWorkspace(ctx context.Context) (*workspace.Workspace, storage.Store, error) {
	store, err := storage.Open(a.cfg.StorageOptions())
	if err != nil {
		return nil, nil, err
	}
	ws, err := workspace.Open(ctx, store, a.cfg.Storage.Owner, a.log)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return ws, store, nil
}
