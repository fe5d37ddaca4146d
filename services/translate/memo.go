package translate

import (
	"context"
	"sync"
)

// DefaultMemoSize bounds the number of remembered results.
const DefaultMemoSize = 4096

type memoKey struct {
	op, lang, text string
}

// Memo remembers successful results of another Translator. Failures are not
// remembered.
type Memo struct {
	next    Translator
	maxSize int

	mu      sync.Mutex
	entries map[memoKey]string
	order   []memoKey
}

// NewMemo wraps next.
func NewMemo(next Translator, maxSize int) *Memo {
	if maxSize <= 0 {
		maxSize = DefaultMemoSize
	}
	return &Memo{next: next, maxSize: maxSize, entries: make(map[memoKey]string)}
}

// Translate implements Translator.
func (m *Memo) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return m.do(ctx, memoKey{"translate", targetLang, text}, m.next.Translate)
}

// Romanize implements Translator.
func (m *Memo) Romanize(ctx context.Context, text, sourceLang string) (string, error) {
	return m.do(ctx, memoKey{"romanize", sourceLang, text}, m.next.Romanize)
}

// Len returns the number of remembered results.
func (m *Memo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memo) do(ctx context.Context, key memoKey, fn func(context.Context, string, string) (string, error)) (string, error) {
	m.mu.Lock()
	if v, ok := m.entries[key]; ok {
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Unlock()

	v, err := fn(ctx, key.text, key.lang)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		if len(m.order) >= m.maxSize {
			delete(m.entries, m.order[0])
			m.order = m.order[1:]
		}
		m.order = append(m.order, key)
	}
	m.entries[key] = v
	return v, nil
}
