// Package tokencount estimates prompt sizes for the chat history budget.
//
// Gemini does not publish a local tokenizer, so counts use tiktoken's
// cl100k_base encoding, which tracks Gemini's counts closely enough for
// budgeting. BPE ranks are loaded from the embedded offline loader. When the
// encoding cannot be loaded the counter falls back to the usual
// four-characters-per-token estimate.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/sharow/sharow/internal/domain"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// tokensPerTurn covers role markers around every history turn.
const tokensPerTurn = 4

// Counter provides thread-safe token counting.
type Counter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
}

// NewCounter creates a counter for the named model.
func NewCounter(model string) *Counter {
	return &Counter{encoding: encodingForModel(model)}
}

// DefaultCounter is shared by callers that do not care about the model.
var DefaultCounter = NewCounter("")

// encodingForModel maps model IDs to a tiktoken encoding name.
func encodingForModel(model string) string {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "o1"):
		return "o200k_base"
	default:
		// gemini, gemma and unknown models
		return "cl100k_base"
	}
}

func (c *Counter) load() *tiktoken.Tiktoken {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(c.encoding)
		if err != nil {
			slog.Warn("token encoding unavailable, using estimate",
				slog.String("encoding", c.encoding),
				slog.Any("error", err))
			return
		}
		c.enc = enc
	})
	return c.enc
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := c.load(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimate(text)
}

// CountTurn counts a single history turn including its role overhead.
func (c *Counter) CountTurn(t domain.Turn) int {
	n := tokensPerTurn
	for _, p := range t.Parts {
		n += c.Count(p.Text)
	}
	return n
}

// CountTurns counts a whole history.
func (c *Counter) CountTurns(turns []domain.Turn) int {
	total := 0
	for _, t := range turns {
		total += c.CountTurn(t)
	}
	return total
}

func estimate(text string) int {
	n := (len(text) + 3) / 4
	if n == 0 {
		n = 1
	}
	return n
}
