package corrector

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/valpere/scanbook/internal/logger"
)

// MemoryStore is the persistent side of the correction memory.
type MemoryStore interface {
	LookupCorrection(ctx context.Context, sourceText, model string) (string, bool, error)
	SaveCorrection(ctx context.Context, sourceText, model, corrected string) error
}

const (
	defaultMemoTTL     = 6 * time.Hour
	defaultMemoCleanup = 30 * time.Minute
)

// Memo answers repeated chunks from memory instead of calling the service
// again. Hits report zero tokens, so they cost nothing.
type Memo struct {
	next   Corrector
	local  *cache.Cache
	store  MemoryStore
	logger *slog.Logger
}

// NewMemo wraps next with an in-process cache and, when store is non-nil, a
// persistent correction memory.
func NewMemo(next Corrector, store MemoryStore, log *slog.Logger) *Memo {
	if log == nil {
		log = logger.Default()
	}
	return &Memo{
		next:   next,
		local:  cache.New(defaultMemoTTL, defaultMemoCleanup),
		store:  store,
		logger: log,
	}
}

func (m *Memo) Name() string {
	return m.next.Name()
}

func memoKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (m *Memo) Correct(ctx context.Context, req Request) (*Response, error) {
	key := memoKey(req.Model, req.Text)

	if v, ok := m.local.Get(key); ok {
		return &Response{Text: v.(string), Model: req.Model, Cached: true}, nil
	}

	if m.store != nil {
		text, found, err := m.store.LookupCorrection(ctx, req.Text, req.Model)
		if err != nil {
			m.logger.Warn("correction memory lookup failed", "error", err)
		} else if found {
			m.local.SetDefault(key, text)
			return &Response{Text: text, Model: req.Model, Cached: true}, nil
		}
	}

	resp, err := m.next.Correct(ctx, req)
	if err != nil {
		return nil, err
	}

	m.local.SetDefault(key, resp.Text)
	if m.store != nil {
		if err := m.store.SaveCorrection(ctx, req.Text, req.Model, resp.Text); err != nil {
			m.logger.Warn("failed to save correction memory", "error", err)
		}
	}
	return resp, nil
}
