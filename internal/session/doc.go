// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns one prompt-authoring session: the template, the
// variable and context source registries, the live conversation and the run
// cycle that extends it.
//
// # State Machine
//
// A session is Idle or Running. StartRun moves it to Running and hands the
// rendered turns to the executor in a background goroutine; when the
// executor settles the session returns to Idle, appending one assistant
// message on success and nothing on failure. At most one run is in flight.
// While it is, every command except SetModelConfig is rejected with
// ErrRunInProgress; reads stay available.
//
// A run on an empty conversation is an initial run: the template's non-blank
// system and user messages are rendered and become the conversation. A run
// on a conversation whose tail is an editing user message is a follow-up:
// the tail is finalized and the whole history is sent. Anything else is
// rejected.
//
// # Commands
//
// All mutations go through Dispatch with one of the Command types. Each
// command validates before it mutates, so a rejected command leaves the
// session untouched.
//
// # Usage
//
//	s := session.New(session.WithExecutor(executor.NewEcho(0)))
//	_, err := s.Dispatch(ctx, session.SetVariableValue{Key: "topic", Value: "taxes"})
//	run, err := s.StartRun(ctx)
//	reply, err := run.Wait(ctx)
package session
