package repository_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/josh-kwaku/interbank-settlement/internal/repository"
	"github.com/josh-kwaku/interbank-settlement/internal/testutil"
)

func newPending(userID uuid.UUID, from, to string, amount int64) *domain.Transfer {
	now := time.Now().UTC()
	return &domain.Transfer{
		ID:            uuid.New(),
		UserID:        userID,
		AccountFrom:   from,
		AccountTo:     to,
		Amount:        amount,
		Currency:      "EUR",
		Explanation:   "rent",
		SenderName:    "Alice",
		Status:        domain.TransferStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestTransferRepository(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewTransferRepository(db)
	ctx := context.Background()

	alice := testutil.SeedUser(t, db, "alice", "Alice")
	testutil.SeedAccount(t, db, alice.ID, "ABC0000000001", "EUR", 50000)

	t.Run("create pending debits source", func(t *testing.T) {
		tr := newPending(alice.ID, "ABC0000000001", "XYZ0000000001", 10000)
		require.NoError(t, repo.CreatePending(ctx, tr))

		assert.Equal(t, int64(40000), testutil.GetAccountBalance(t, db, "ABC0000000001"))
		got, ok := testutil.FindTransfer(t, db, tr.ID)
		require.True(t, ok)
		assert.Equal(t, domain.TransferStatusPending, got.Status)
		assert.Equal(t, domain.Currency("EUR"), got.Currency)
		assert.Zero(t, got.Attempts)
	})

	t.Run("insufficient funds leaves nothing behind", func(t *testing.T) {
		tr := newPending(alice.ID, "ABC0000000001", "XYZ0000000001", 1_000_000)
		err := repo.CreatePending(ctx, tr)

		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
		assert.Equal(t, int64(40000), testutil.GetAccountBalance(t, db, "ABC0000000001"))
		_, ok := testutil.FindTransfer(t, db, tr.ID)
		assert.False(t, ok)
	})

	t.Run("claim is exclusive", func(t *testing.T) {
		id := testutil.SeedPendingTransfer(t, db, alice.ID, "ABC0000000001", "XYZ0000000002", 100, time.Now().UTC())

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repo.Claim(ctx, id); err == nil {
					wins.Add(1)
				} else {
					assert.ErrorIs(t, err, domain.ErrTransferClaimed)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
		status, _ := testutil.GetTransferStatus(t, db, id)
		assert.Equal(t, domain.TransferStatusInProgress, status)
	})

	t.Run("release reschedules", func(t *testing.T) {
		id := testutil.SeedPendingTransfer(t, db, alice.ID, "ABC0000000001", "XYZ0000000003", 100, time.Now().UTC())
		attempts, err := repo.Claim(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 1, attempts)

		later := time.Now().UTC().Add(time.Hour)
		require.NoError(t, repo.Release(ctx, id, "peer unreachable", later))

		due, err := repo.ListDue(ctx, time.Now().UTC(), 100)
		require.NoError(t, err)
		for _, d := range due {
			assert.NotEqual(t, id, d.ID)
		}

		due, err = repo.ListDue(ctx, later.Add(time.Second), 100)
		require.NoError(t, err)
		assert.Contains(t, transferIDs(due), id)
	})

	t.Run("fail and refund happens once", func(t *testing.T) {
		tr := newPending(alice.ID, "ABC0000000001", "XYZ0000000004", 5000)
		require.NoError(t, repo.CreatePending(ctx, tr))
		before := testutil.GetAccountBalance(t, db, "ABC0000000001")

		_, err := repo.Claim(ctx, tr.ID)
		require.NoError(t, err)

		require.NoError(t, repo.FailAndRefund(ctx, tr.ID, domain.TransferStatusInProgress, "Bank XYZ does not exist"))
		err = repo.FailAndRefund(ctx, tr.ID, domain.TransferStatusInProgress, "Bank XYZ does not exist")
		assert.ErrorIs(t, err, domain.ErrTransferTerminal)

		assert.Equal(t, before+5000, testutil.GetAccountBalance(t, db, "ABC0000000001"))
		status, detail := testutil.GetTransferStatus(t, db, tr.ID)
		assert.Equal(t, domain.TransferStatusFailed, status)
		assert.Equal(t, "Bank XYZ does not exist", detail)
	})

	t.Run("complete only from in progress", func(t *testing.T) {
		id := testutil.SeedPendingTransfer(t, db, alice.ID, "ABC0000000001", "XYZ0000000005", 100, time.Now().UTC())
		assert.ErrorIs(t, repo.Complete(ctx, id, "Bob"), domain.ErrTransferTerminal)

		_, err := repo.Claim(ctx, id)
		require.NoError(t, err)
		require.NoError(t, repo.Complete(ctx, id, "Bob"))

		got, ok := testutil.FindTransfer(t, db, id)
		require.True(t, ok)
		assert.Equal(t, domain.TransferStatusCompleted, got.Status)
		assert.Equal(t, "Bob", got.ReceiverName)
		assert.Equal(t, 1, got.Attempts)
	})

	t.Run("stale claims are released", func(t *testing.T) {
		id := testutil.SeedPendingTransfer(t, db, alice.ID, "ABC0000000001", "XYZ0000000006", 100, time.Now().UTC())
		_, err := repo.Claim(ctx, id)
		require.NoError(t, err)

		n, err := repo.ReleaseStale(ctx, time.Now().UTC().Add(-time.Minute))
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = repo.ReleaseStale(ctx, time.Now().UTC().Add(time.Minute))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))
		status, detail := testutil.GetTransferStatus(t, db, id)
		assert.Equal(t, domain.TransferStatusPending, status)
		assert.Equal(t, "Claim abandoned", detail)
	})
}

func TestRecordInbound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewTransferRepository(db)
	ctx := context.Background()

	bob := testutil.SeedUser(t, db, "bob", "Bob Jones")
	testutil.SeedAccount(t, db, bob.ID, "ABC0000000009", "USD", 0)

	ref := "XYZ:" + uuid.NewString()
	inbound := func() *domain.Transfer {
		tr := newPending(bob.ID, "XYZ0000000001", "ABC0000000009", 11000)
		tr.Currency = "USD"
		tr.Status = domain.TransferStatusCompleted
		tr.ReceiverName = bob.Name
		tr.ExternalRef = &ref
		return tr
	}

	first := inbound()
	require.NoError(t, repo.RecordInbound(ctx, first, 11000))
	assert.Equal(t, int64(11000), testutil.GetAccountBalance(t, db, "ABC0000000009"))

	err := repo.RecordInbound(ctx, inbound(), 11000)
	assert.ErrorIs(t, err, domain.ErrDuplicateTransfer)
	assert.Equal(t, int64(11000), testutil.GetAccountBalance(t, db, "ABC0000000009"))

	got, err := repo.GetByExternalRef(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	list, err := repo.ListByUser(ctx, bob.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestBankRepositoryReplaceAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewBankRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceAll(ctx, []domain.Bank{
		{Prefix: "AAA", Name: "A", TransferURL: "http://a/transfer", KeySetURL: "http://a/jwks"},
		{Prefix: "BBB", Name: "B", TransferURL: "http://b/transfer", KeySetURL: "http://b/jwks"},
	}))
	require.NoError(t, repo.ReplaceAll(ctx, []domain.Bank{
		{Prefix: "CCC", Name: "C", TransferURL: "http://c/transfer", KeySetURL: "http://c/jwks"},
	}))

	banks, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, banks, 1)
	assert.Equal(t, "CCC", banks[0].Prefix)
	assert.False(t, banks[0].RefreshedAt.IsZero())

	err = repo.ReplaceAll(ctx, []domain.Bank{
		{Prefix: "DDD", TransferURL: "http://d", KeySetURL: "http://d"},
		{Prefix: "DDD", TransferURL: "http://d", KeySetURL: "http://d"},
	})
	require.Error(t, err)

	banks, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, banks, 1)
	assert.Equal(t, "CCC", banks[0].Prefix)
}

func transferIDs(ts []domain.Transfer) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(ts))
	for _, t := range ts {
		ids = append(ids, t.ID)
	}
	return ids
}
