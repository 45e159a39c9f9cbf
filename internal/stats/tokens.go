// internal/stats/tokens.go
package stats

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/chatfeed/internal/types"
)

// Counter reports token counts over session transcripts. It backs the
// debug panel's "tokens so far" readout while an assistant response is
// still streaming.
type Counter struct {
	tokenizer *tiktoken.Tiktoken
}

// New creates a Counter using the tokenizer for the given model name.
func New(model string) (*Counter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Counter{tokenizer: enc}, nil
}

// CountEvent returns the token count of an event's textual payload fields.
func (c *Counter) CountEvent(event *types.CanonicalEvent) int {
	total := 0
	for _, text := range []string{
		event.Payload.Text,
		event.Payload.Content,
		event.Payload.Detail,
	} {
		if text != "" {
			total += len(c.tokenizer.Encode(text, nil, nil))
		}
	}
	return total
}

// SessionTokens sums the token counts of a session's events.
func (c *Counter) SessionTokens(events []*types.CanonicalEvent) int {
	total := 0
	for _, event := range events {
		total += c.CountEvent(event)
	}
	return total
}

// StreamingTokens sums tokens over only the events still open to patches,
// i.e. the text produced so far by in-progress responses.
func (c *Counter) StreamingTokens(events []*types.CanonicalEvent) int {
	total := 0
	for _, event := range events {
		if event.Streaming {
			total += c.CountEvent(event)
		}
	}
	return total
}
