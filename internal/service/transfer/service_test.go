package transfer

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/josh-kwaku/interbank-settlement/internal/fx"
	"github.com/josh-kwaku/interbank-settlement/internal/signing"
)

type memTransfers struct {
	mu      sync.Mutex
	pending []domain.Transfer
	byRef   map[string]domain.Transfer
	credits map[string]int64
}

func newMemTransfers() *memTransfers {
	return &memTransfers{byRef: make(map[string]domain.Transfer), credits: make(map[string]int64)}
}

func (m *memTransfers) CreatePending(_ context.Context, t *domain.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, *t)
	return nil
}

func (m *memTransfers) RecordInbound(_ context.Context, t *domain.Transfer, credit int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byRef[*t.ExternalRef]; ok {
		return domain.ErrDuplicateTransfer
	}
	m.byRef[*t.ExternalRef] = *t
	m.credits[t.AccountTo] += credit
	return nil
}

func (m *memTransfers) GetByExternalRef(_ context.Context, ref string) (*domain.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byRef[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &t, nil
}

func (m *memTransfers) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]domain.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Transfer
	for _, t := range m.pending {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

type memAccounts map[string]*domain.Account

func (m memAccounts) GetByNumber(_ context.Context, number string) (*domain.Account, error) {
	a, ok := m[number]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

type memUsers map[uuid.UUID]*domain.User

func (m memUsers) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

type stubBanks struct {
	banks map[string]domain.Bank
	err   error
}

func (s *stubBanks) Resolve(_ context.Context, prefix string) (domain.Bank, error) {
	if s.err != nil {
		return domain.Bank{}, s.err
	}
	b, ok := s.banks[prefix]
	if !ok {
		return domain.Bank{}, domain.ErrBankNotFound
	}
	return b, nil
}

type stubFX struct {
	rate decimal.Decimal
	err  error
}

func (s *stubFX) Convert(_ context.Context, amount int64, _, _ domain.Currency) (*fx.Conversion, error) {
	if s.err != nil {
		return nil, s.err
	}
	dest := decimal.NewFromInt(amount).Mul(s.rate).Round(0).IntPart()
	return &fx.Conversion{SourceAmount: amount, DestAmount: dest, Rate: s.rate}, nil
}

type fixture struct {
	svc       *Service
	transfers *memTransfers
	banks     *stubBanks
	fx        *stubFX
	signer    *signing.Signer
	alice     *domain.User
	bob       *domain.User
	aliceAcct *domain.Account
	bobAcct   *domain.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "private.key")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	require.NoError(t, os.WriteFile(path, pemBytes, 0o600))

	signer := signing.NewSigner("ABC", path, time.Minute)
	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		set, err := signer.PublicKeySet()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(jwks.Close)

	alice := &domain.User{ID: uuid.New(), Username: "alice", Name: "Alice Smith"}
	bob := &domain.User{ID: uuid.New(), Username: "bob", Name: "Bob Jones"}
	aliceAcct := &domain.Account{ID: uuid.New(), UserID: alice.ID, Number: "ABC0000000001", Balance: 10000, Currency: "EUR"}
	bobAcct := &domain.Account{ID: uuid.New(), UserID: bob.ID, Number: "XYZ0000000001", Balance: 0, Currency: "EUR"}

	verifier := signing.NewVerifier(time.Second, time.Minute)
	t.Cleanup(verifier.Close)

	f := &fixture{
		transfers: newMemTransfers(),
		banks: &stubBanks{banks: map[string]domain.Bank{
			"ABC": {Prefix: "ABC", TransferURL: "http://abc.test/b2b", KeySetURL: jwks.URL},
			"XYZ": {Prefix: "XYZ", TransferURL: "http://xyz.test/b2b", KeySetURL: "http://xyz.test/jwks"},
		}},
		fx:        &stubFX{rate: decimal.RequireFromString("1.10")},
		signer:    signer,
		alice:     alice,
		bob:       bob,
		aliceAcct: aliceAcct,
		bobAcct:   bobAcct,
	}
	f.svc = NewService(
		f.transfers,
		memAccounts{aliceAcct.Number: aliceAcct, bobAcct.Number: bobAcct},
		memUsers{alice.ID: alice, bob.ID: bob},
		f.banks,
		f.fx,
		verifier,
		nil,
	)
	return f
}

func (f *fixture) token(t *testing.T, a domain.Assertion) string {
	t.Helper()
	tok, err := f.signer.Sign(uuid.New(), a)
	require.NoError(t, err)
	return tok
}

func TestCreateTransfer(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name        string
		req         func() CreateTransferRequest
		registryErr error
		wantErr     error
		wantDetail  string
	}{
		{
			name: "queued",
			req: func() CreateTransferRequest {
				return CreateTransferRequest{UserID: f.alice.ID, AccountFrom: "ABC0000000001", AccountTo: "XYZ0000000001", Amount: 10000, Explanation: "rent"}
			},
		},
		{
			name: "source not found",
			req: func() CreateTransferRequest {
				return CreateTransferRequest{UserID: f.alice.ID, AccountFrom: "ABC9999999999", AccountTo: "XYZ0000000001", Amount: 100, Explanation: "rent"}
			},
			wantErr: domain.ErrAccountNotFound,
		},
		{
			name: "not the owner",
			req: func() CreateTransferRequest {
				return CreateTransferRequest{UserID: f.bob.ID, AccountFrom: "ABC0000000001", AccountTo: "XYZ0000000001", Amount: 100, Explanation: "rent"}
			},
			wantErr: domain.ErrForbidden,
		},
		{
			name: "insufficient funds",
			req: func() CreateTransferRequest {
				return CreateTransferRequest{UserID: f.alice.ID, AccountFrom: "ABC0000000001", AccountTo: "XYZ0000000001", Amount: 10001, Explanation: "rent"}
			},
			wantErr: domain.ErrInsufficientFunds,
		},
		{
			name: "unknown destination bank",
			req: func() CreateTransferRequest {
				return CreateTransferRequest{UserID: f.alice.ID, AccountFrom: "ABC0000000001", AccountTo: "QQQ0000000001", Amount: 100, Explanation: "rent"}
			},
			wantErr: domain.ErrInvalidAccountTo,
		},
		{
			name: "registry down still queues",
			req: func() CreateTransferRequest {
				return CreateTransferRequest{UserID: f.alice.ID, AccountFrom: "ABC0000000001", AccountTo: "XYZ0000000001", Amount: 100, Explanation: "rent"}
			},
			registryErr: domain.ErrRegistryUnavailable,
			wantDetail:  "Central bank refresh failed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f.banks.err = tc.registryErr
			defer func() { f.banks.err = nil }()

			req := tc.req()
			tr, err := f.svc.CreateTransfer(context.Background(), req)

			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.TransferStatusPending, tr.Status)
			assert.Equal(t, "Alice Smith", tr.SenderName)
			assert.Equal(t, domain.Currency("EUR"), tr.Currency)
			assert.Equal(t, req.Amount, tr.Amount)
			assert.Contains(t, tr.StatusDetail, tc.wantDetail)
		})
	}

	listed, err := f.svc.ListTransfers(context.Background(), f.alice.ID, 20, 0)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestReceiveAssertion(t *testing.T) {
	base := domain.Assertion{
		AccountFrom: "ABC0000000001",
		AccountTo:   "XYZ0000000001",
		Amount:      10000,
		Currency:    "EUR",
		Explanation: "rent",
		SenderName:  "Alice Smith",
		CreatedAt:   time.Now().UTC(),
	}

	t.Run("credits same currency", func(t *testing.T) {
		f := newFixture(t)
		name, err := f.svc.ReceiveAssertion(context.Background(), f.token(t, base))
		require.NoError(t, err)
		assert.Equal(t, "Bob Jones", name)
		assert.Equal(t, int64(10000), f.transfers.credits["XYZ0000000001"])
	})

	t.Run("converts foreign currency", func(t *testing.T) {
		f := newFixture(t)
		a := base
		a.Currency = "USD"
		_, err := f.svc.ReceiveAssertion(context.Background(), f.token(t, a))
		require.NoError(t, err)
		assert.Equal(t, int64(11000), f.transfers.credits["XYZ0000000001"])
	})

	t.Run("conversion failure credits nothing", func(t *testing.T) {
		f := newFixture(t)
		f.fx.err = domain.ErrConversion
		a := base
		a.Currency = "USD"
		_, err := f.svc.ReceiveAssertion(context.Background(), f.token(t, a))
		require.ErrorIs(t, err, domain.ErrConversion)
		assert.Empty(t, f.transfers.credits)
	})

	t.Run("replay is not credited twice", func(t *testing.T) {
		f := newFixture(t)
		tok := f.token(t, base)
		first, err := f.svc.ReceiveAssertion(context.Background(), tok)
		require.NoError(t, err)
		second, err := f.svc.ReceiveAssertion(context.Background(), tok)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, int64(10000), f.transfers.credits["XYZ0000000001"])
	})

	t.Run("unknown destination account", func(t *testing.T) {
		f := newFixture(t)
		a := base
		a.AccountTo = "XYZ9999999999"
		_, err := f.svc.ReceiveAssertion(context.Background(), f.token(t, a))
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("issuer does not own source account", func(t *testing.T) {
		f := newFixture(t)
		a := base
		a.AccountFrom = "XYZ0000000002"
		_, err := f.svc.ReceiveAssertion(context.Background(), f.token(t, a))
		require.ErrorIs(t, err, domain.ErrInvalidAssertion)
		assert.Empty(t, f.transfers.credits)
	})

	t.Run("registry unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.banks.err = domain.ErrRegistryUnavailable
		_, err := f.svc.ReceiveAssertion(context.Background(), f.token(t, base))
		require.ErrorIs(t, err, domain.ErrRegistryUnavailable)
	})

	t.Run("tampered token", func(t *testing.T) {
		f := newFixture(t)
		tok := f.token(t, base)
		tampered := tok[:len(tok)-4] + "AAAA"
		_, err := f.svc.ReceiveAssertion(context.Background(), tampered)
		require.ErrorIs(t, err, domain.ErrInvalidAssertion)
		assert.Empty(t, f.transfers.credits)
	})

	t.Run("malformed token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ReceiveAssertion(context.Background(), "garbage")
		require.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}
