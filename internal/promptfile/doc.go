// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package promptfile reads and writes prompt definitions as YAML and keeps
// a live session in sync with the file on disk.
//
// # Format
//
//	name: Support bot
//	model:
//	  model: llama3
//	  temperature: 0.3
//	template:
//	  - role: system
//	    content: "Answer {{who}} using {{policy}}"
//	  - role: user
//	    content: "Hello"
//	variables:
//	  - key: who
//	    value: Ada
//	  - key: policy
//	    source: hr-docs
//	sources:
//	  - id: hr-docs
//	    name: HR docs
//	    endpoint: https://hr.example.com/policy
//	    headers:
//	      Authorization: Bearer ...
//	tools: [search]
//
// A variable with a source is external and bound to the source whose id or
// name matches. Model settings that are omitted keep their defaults.
//
// # Usage
//
//	f, err := promptfile.Load("bot.yaml")
//	sess, err := f.NewSession(session.WithLogger(log))
//
//	w, err := promptfile.NewWatcher("bot.yaml", 200*time.Millisecond, func(f *promptfile.File, err error) {
//	    if err == nil {
//	        promptfile.Apply(ctx, sess, f)
//	    }
//	}, log)
//	err = w.Start()
//	defer w.Close()
package promptfile
