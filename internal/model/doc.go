// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for templates, conversations and messages.
//
// # Key Types
//
//   - Message: single role-tagged turn with an editing flag
//   - MessageList: ordered, ID-indexed sequence used for both the template and the conversation
//   - Turn: rendered role/content pair sent to the run executor
//   - ModelConfig: configuration record passed with every run
//   - Role: message role enumeration (system, user, assistant, tool)
//
// # Usage
//
//	template := model.NewMessageList(model.NewSystemMessage("Hi {{name}}"))
//	sys, _ := template.FirstWithRole(model.RoleSystem)
//	template.Update(sys.ID, func(m *model.Message) { m.Content = "Hello {{name}}" })
package model
