package runtime

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"devspace/internal/domain"
)

// perMessageOverhead approximates the role/framing tokens the chat format adds.
const perMessageOverhead = 4

// TokenCounter counts tokens in a piece of text.
type TokenCounter interface {
	Count(text string) int
}

// HeuristicCounter estimates one token per four characters.
type HeuristicCounter struct{}

// Count implements TokenCounter.
func (HeuristicCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// counterEntry loads one model's encoding at most once.
type counterEntry struct {
	once    sync.Once
	counter TokenCounter
}

var (
	offlineBPE sync.Once
	encMu      sync.Mutex
	encCache   = map[string]*counterEntry{}
)

// NewTokenCounter returns a tiktoken counter for model, falling back to the
// cl100k_base encoding and then to HeuristicCounter when no encoding loads.
// Encodings come from the BPE files bundled with the binary, never the
// network. Loading one model does not block lookups of another.
func NewTokenCounter(model string) TokenCounter {
	offlineBPE.Do(func() { tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader()) })

	encMu.Lock()
	e, ok := encCache[model]
	if !ok {
		e = &counterEntry{}
		encCache[model] = e
	}
	encMu.Unlock()

	e.once.Do(func() { e.counter = loadCounter(model) })
	return e.counter
}

func loadCounter(model string) TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	}
	if err != nil {
		return HeuristicCounter{}
	}
	return tiktokenCounter{enc: enc}
}

// messageTokens counts msg including framing overhead.
func messageTokens(c TokenCounter, msg domain.Message) int {
	return c.Count(msg.Content) + perMessageOverhead
}

// countTokens sums messageTokens over msgs.
func countTokens(c TokenCounter, msgs []domain.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageTokens(c, m)
	}
	return total
}

// trimToBudget keeps the newest messages whose combined size fits budget.
// The last message is always kept so the current turn is never dropped.
func trimToBudget(c TokenCounter, msgs []domain.Message, budget int) []domain.Message {
	if len(msgs) == 0 {
		return msgs
	}
	used := messageTokens(c, msgs[len(msgs)-1])
	start := len(msgs) - 1
	for i := len(msgs) - 2; i >= 0; i-- {
		n := messageTokens(c, msgs[i])
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	return msgs[start:]
}
