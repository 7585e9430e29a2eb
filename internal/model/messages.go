// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// MESSAGE LIST TYPE
// =============================================================================

// MessageList is an ordered sequence of messages indexed by ID.
// Lookups by ID are O(1); order is kept in a separate slice of IDs.
// The zero value is an empty, usable list.
type MessageList struct {
	order []string
	byID  map[string]*Message
}

// NewMessageList creates a list holding copies of msgs in order.
func NewMessageList(msgs ...Message) *MessageList {
	l := &MessageList{}
	for _, msg := range msgs {
		l.Append(msg)
	}
	return l
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a copy of msg at the end of the list. A message without an ID
// gets one minted; a message whose ID is already present replaces nothing and
// returns false.
func (l *MessageList) Append(msg Message) bool {
	if l.byID == nil {
		l.byID = make(map[string]*Message)
	}
	if msg.ID == "" {
		msg.ID = NewID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if _, exists := l.byID[msg.ID]; exists {
		return false
	}
	stored := msg
	l.byID[msg.ID] = &stored
	l.order = append(l.order, msg.ID)
	return true
}

// Get returns a copy of the message with id.
func (l *MessageList) Get(id string) (Message, bool) {
	msg, ok := l.byID[id]
	if !ok {
		return Message{}, false
	}
	return *msg, true
}

// Update applies fn to the stored message with id. The ID cannot be changed.
func (l *MessageList) Update(id string, fn func(*Message)) bool {
	msg, ok := l.byID[id]
	if !ok {
		return false
	}
	fn(msg)
	msg.ID = id
	return true
}

// Remove removes a message by ID.
func (l *MessageList) Remove(id string) bool {
	if _, ok := l.byID[id]; !ok {
		return false
	}
	delete(l.byID, id)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// Clear removes all messages.
func (l *MessageList) Clear() {
	l.order = nil
	l.byID = nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Len returns the number of messages.
func (l *MessageList) Len() int {
	return len(l.order)
}

// IsEmpty returns true if there are no messages.
func (l *MessageList) IsEmpty() bool {
	return len(l.order) == 0
}

// Last returns a copy of the last message.
func (l *MessageList) Last() (Message, bool) {
	if len(l.order) == 0 {
		return Message{}, false
	}
	return *l.byID[l.order[len(l.order)-1]], true
}

// FirstWithRole returns a copy of the first message with role.
func (l *MessageList) FirstWithRole(role Role) (Message, bool) {
	for _, id := range l.order {
		if msg := l.byID[id]; msg.Role == role {
			return *msg, true
		}
	}
	return Message{}, false
}

// CountEditing returns the number of messages with Editing set.
func (l *MessageList) CountEditing() int {
	n := 0
	for _, id := range l.order {
		if l.byID[id].Editing {
			n++
		}
	}
	return n
}

// All returns copies of the messages in order.
func (l *MessageList) All() []Message {
	out := make([]Message, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.byID[id])
	}
	return out
}

// Clone returns a deep copy of the list.
func (l *MessageList) Clone() *MessageList {
	return NewMessageList(l.All()...)
}

// Turns converts messages to executor turns, in order.
func Turns(msgs []Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, msg := range msgs {
		turns = append(turns, msg.Turn())
	}
	return turns
}
