// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamCallback receives each content fragment of a streamed reply.
type StreamCallback func(fragment string)

// streamReader folds an NDJSON chat stream into one response.
type streamReader struct {
	reader *bufio.Reader
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	content strings.Builder
}

func newStreamReader(r io.Reader) *streamReader {
	return &streamReader{reader: bufio.NewReader(r)}
}

// collect reads until the done chunk or EOF and returns the folded response.
// Malformed lines are skipped.
func (s *streamReader) collect(ctx context.Context, onFragment StreamCallback) (*ChatResponse, error) {
	var last ChatResponse
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := s.reader.ReadBytes('\n')
		if len(line) > 0 {
			var chunk ChatResponse
			if jsonErr := json.Unmarshal(line, &chunk); jsonErr == nil {
				if chunk.Message.Content != "" {
					s.content.WriteString(chunk.Message.Content)
					if onFragment != nil {
						onFragment(chunk.Message.Content)
					}
				}
				last = chunk
				if chunk.Done {
					break
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}
	if !last.Done {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "stream ended before completion"}
	}
	last.Message = Message{Role: "assistant", Content: s.content.String()}
	return &last, nil
}
