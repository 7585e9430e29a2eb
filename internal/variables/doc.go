// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package variables keeps the set of template variables in step with the
// placeholders of the system message.
//
// A Registry is reconciled from the system message text on every content
// edit: keys still present keep their binding, new keys start as empty
// static values and vanished keys are dropped. Delete and Rename take the
// current system text and return the rewritten text, so the caller can
// commit both sides together. Every operation validates before it mutates.
//
// # Usage
//
//	reg := variables.New()
//	reg.Reconcile("Hi {{name}}, re {{topic}}")
//	text, err := reg.Rename("topic", "subject", "Hi {{name}}, re {{topic}}")
package variables
