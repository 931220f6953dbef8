package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthority struct {
	mu    sync.Mutex
	banks []domain.Bank
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (f *fakeAuthority) FetchBanks(_ context.Context) ([]domain.Bank, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.Bank(nil), f.banks...), nil
}

func (f *fakeAuthority) set(banks []domain.Bank, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.banks = banks
	f.err = err
}

type fakeStore struct {
	mu       sync.Mutex
	banks    []domain.Bank
	failNext error
}

func (s *fakeStore) List(_ context.Context) ([]domain.Bank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Bank(nil), s.banks...), nil
}

func (s *fakeStore) ReplaceAll(_ context.Context, banks []domain.Bank) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	s.banks = append([]domain.Bank(nil), banks...)
	return nil
}

var (
	bankABC = domain.Bank{Prefix: "ABC", Name: "Alpha", TransferURL: "http://abc/transactions/b2b", KeySetURL: "http://abc/transactions/jwks"}
	bankXYZ = domain.Bank{Prefix: "XYZ", Name: "Zeta", TransferURL: "http://xyz/transactions/b2b", KeySetURL: "http://xyz/transactions/jwks"}
)

func TestCache_Resolve(t *testing.T) {
	tests := []struct {
		name         string
		seed         []domain.Bank
		authority    []domain.Bank
		authorityErr error
		prefix       string
		wantBank     domain.Bank
		wantErr      error
		wantCalls    int32
	}{
		{
			name:      "hit skips refresh",
			seed:      []domain.Bank{bankABC},
			prefix:    "ABC",
			wantBank:  bankABC,
			wantCalls: 0,
		},
		{
			name:      "miss refreshes once and finds bank",
			seed:      []domain.Bank{bankABC},
			authority: []domain.Bank{bankABC, bankXYZ},
			prefix:    "XYZ",
			wantBank:  bankXYZ,
			wantCalls: 1,
		},
		{
			name:      "miss after refresh is bank not found",
			authority: []domain.Bank{bankABC},
			prefix:    "QQQ",
			wantErr:   domain.ErrBankNotFound,
			wantCalls: 1,
		},
		{
			name:         "refresh failure is registry unavailable",
			authorityErr: domain.ErrRegistryUnavailable,
			prefix:       "XYZ",
			wantErr:      domain.ErrRegistryUnavailable,
			wantCalls:    1,
		},
		{
			name:         "untyped refresh failure is registry unavailable",
			authorityErr: errors.New("boom"),
			prefix:       "XYZ",
			wantErr:      domain.ErrRegistryUnavailable,
			wantCalls:    1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			auth := &fakeAuthority{banks: tc.authority, err: tc.authorityErr}
			store := &fakeStore{banks: tc.seed}
			cache := NewCache(auth, store)
			require.NoError(t, cache.Load(context.Background()))

			bank, err := cache.Resolve(context.Background(), tc.prefix)

			assert.Equal(t, tc.wantCalls, auth.calls.Load())
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantBank, bank)
		})
	}
}

func TestCache_FailedRefreshKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuthority{banks: []domain.Bank{bankABC}}
	store := &fakeStore{}
	cache := NewCache(auth, store)

	require.NoError(t, cache.Refresh(ctx))
	_, ok := cache.Lookup("ABC")
	require.True(t, ok)

	auth.set(nil, domain.ErrRegistryUnavailable)
	require.ErrorIs(t, cache.Refresh(ctx), domain.ErrRegistryUnavailable)

	got, ok := cache.Lookup("ABC")
	require.True(t, ok)
	assert.Equal(t, bankABC, got)
	assert.Len(t, store.banks, 1)
}

func TestCache_StoreFailureDoesNotPublish(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuthority{banks: []domain.Bank{bankABC}}
	store := &fakeStore{failNext: errors.New("tx aborted")}
	cache := NewCache(auth, store)

	err := cache.Refresh(ctx)
	require.ErrorIs(t, err, domain.ErrRegistryUnavailable)

	_, ok := cache.Lookup("ABC")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestCache_RefreshReplacesWholeSet(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuthority{banks: []domain.Bank{bankABC}}
	cache := NewCache(auth, &fakeStore{})

	require.NoError(t, cache.Refresh(ctx))
	auth.set([]domain.Bank{bankXYZ}, nil)
	require.NoError(t, cache.Refresh(ctx))

	_, ok := cache.Lookup("ABC")
	assert.False(t, ok, "banks removed upstream must disappear")
	_, ok = cache.Lookup("XYZ")
	assert.True(t, ok)
}

func TestCache_ConcurrentMissesShareRefresh(t *testing.T) {
	auth := &fakeAuthority{banks: []domain.Bank{bankXYZ}, delay: 50 * time.Millisecond}
	cache := NewCache(auth, &fakeStore{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Resolve(context.Background(), "XYZ")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, auth.calls.Load(), int32(2))
}
