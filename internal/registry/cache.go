package registry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/josh-kwaku/interbank-settlement/internal/logging"
	"github.com/josh-kwaku/interbank-settlement/internal/metrics"
)

type authority interface {
	FetchBanks(ctx context.Context) ([]domain.Bank, error)
}

type bankStore interface {
	List(ctx context.Context) ([]domain.Bank, error)
	ReplaceAll(ctx context.Context, banks []domain.Bank) error
}

type snapshot map[string]domain.Bank

// Cache mirrors the registry authority. Readers see an immutable snapshot; a
// refresh builds a new one and publishes it only after it has been persisted.
type Cache struct {
	authority authority
	store     bankStore
	current   atomic.Pointer[snapshot]
	refreshes singleflight.Group
}

func NewCache(a authority, store bankStore) *Cache {
	c := &Cache{authority: a, store: store}
	empty := snapshot{}
	c.current.Store(&empty)
	return c
}

// Load warms the snapshot from persisted rows.
func (c *Cache) Load(ctx context.Context) error {
	banks, err := c.store.List(ctx)
	if err != nil {
		return fmt.Errorf("Load: %w", err)
	}
	c.publish(banks)
	return nil
}

func (c *Cache) Lookup(prefix string) (domain.Bank, bool) {
	b, ok := (*c.current.Load())[prefix]
	return b, ok
}

func (c *Cache) Len() int {
	return len(*c.current.Load())
}

// Refresh replaces the whole bank set with the authority's current list. Concurrent
// callers share a single fetch.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, _ := c.refreshes.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	if err != nil {
		return fmt.Errorf("Refresh: %w", err)
	}
	return nil
}

func (c *Cache) refresh(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("refreshing list of banks")

	banks, err := c.authority.FetchBanks(ctx)
	if err != nil {
		metrics.RegistryRefreshes.WithLabelValues("fetch_error").Inc()
		return err
	}

	if err := c.store.ReplaceAll(ctx, banks); err != nil {
		metrics.RegistryRefreshes.WithLabelValues("store_error").Inc()
		return fmt.Errorf("%v: %w", err, domain.ErrRegistryUnavailable)
	}

	c.publish(banks)
	metrics.RegistryRefreshes.WithLabelValues("ok").Inc()
	log.Info("list of banks refreshed", "banks", len(banks))
	return nil
}

// Resolve returns the bank owning prefix, refreshing once on a miss.
func (c *Cache) Resolve(ctx context.Context, prefix string) (domain.Bank, error) {
	if b, ok := c.Lookup(prefix); ok {
		return b, nil
	}

	if err := c.Refresh(ctx); err != nil {
		if !errors.Is(err, domain.ErrRegistryUnavailable) {
			err = fmt.Errorf("%v: %w", err, domain.ErrRegistryUnavailable)
		}
		return domain.Bank{}, fmt.Errorf("Resolve: %w", err)
	}

	if b, ok := c.Lookup(prefix); ok {
		return b, nil
	}
	return domain.Bank{}, fmt.Errorf("Resolve: bank %s: %w", prefix, domain.ErrBankNotFound)
}

func (c *Cache) publish(banks []domain.Bank) {
	next := make(snapshot, len(banks))
	for _, b := range banks {
		next[b.Prefix] = b
	}
	c.current.Store(&next)
}
