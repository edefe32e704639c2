package lexicon

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/phrazzld/scry-verify/internal/domain"
	"github.com/phrazzld/scry-verify/internal/platform/logger"
	"github.com/phrazzld/scry-verify/internal/store"
	"golang.org/x/sync/singleflight"
)

// DefaultLookupTimeout bounds one shared upstream lookup.
const DefaultLookupTimeout = 5 * time.Second

// CachedStore decorates a LexicalStore with a TTL and size bounded LRU
// cache. Concurrent misses for the same item share one upstream lookup that
// no single caller can cancel. Errors are not cached.
type CachedStore struct {
	next          store.LexicalStore
	lookupTimeout time.Duration
	logger        *slog.Logger

	entries *expirable.LRU[uuid.UUID, domain.LexicalItem]
	group   singleflight.Group
}

// Compile-time check to ensure CachedStore implements store.LexicalStore
var _ store.LexicalStore = (*CachedStore)(nil)

// NewCachedStore wraps next. A zero ttl disables expiry; a non-positive
// maxSize disables the size bound.
func NewCachedStore(next store.LexicalStore, ttl time.Duration, maxSize int, logger *slog.Logger) *CachedStore {
	if next == nil {
		panic("next cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if ttl < 0 {
		ttl = 0
	}
	if maxSize < 0 {
		maxSize = 0
	}
	return &CachedStore{
		next:          next,
		lookupTimeout: DefaultLookupTimeout,
		logger:        logger.With(slog.String("component", "lexicon_cache")),
		entries:       expirable.NewLRU[uuid.UUID, domain.LexicalItem](maxSize, nil, ttl),
	}
}

// GetItem implements store.LexicalStore.
//
// A caller whose context ends while waiting on a shared lookup gets its own
// context error; the lookup keeps running for the other callers.
func (c *CachedStore) GetItem(ctx context.Context, itemID uuid.UUID) (*domain.LexicalItem, error) {
	if item, ok := c.entries.Get(itemID); ok {
		out := copyItem(item)
		return &out, nil
	}

	ch := c.group.DoChan(itemID.String(), func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.lookupTimeout)
		defer cancel()

		item, err := c.next.GetItem(lookupCtx, itemID)
		if err != nil {
			return nil, err
		}
		c.entries.Add(itemID, copyItem(*item))
		return item, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			logger.FromContextOrDefault(ctx, c.logger).Debug("shared lexicon lookup",
				slog.String("item_id", itemID.String()))
		}
		out := copyItem(*res.Val.(*domain.LexicalItem))
		return &out, nil
	}
}

// Invalidate drops every cached entry.
func (c *CachedStore) Invalidate() {
	c.entries.Purge()
}

// Len returns the number of cached entries.
func (c *CachedStore) Len() int {
	return c.entries.Len()
}
