package signing

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/josh-kwaku/interbank-settlement/internal/logging"
)

// unknownKIDRefreshEvery bounds how often a token with an unseen kid can force a
// key set refetch from one bank.
const unknownKIDRefreshEvery = 30 * time.Second

// keySet is one bank's key lookup and the handle that stops its background refresh.
type keySet struct {
	kf   keyfunc.Keyfunc
	stop context.CancelFunc
}

// Verifier checks peer assertions against the key set each bank publishes. Key sets
// are fetched on first use, refreshed in the background every cacheTTL and refetched
// early when a token names a kid the cached set lacks.
type Verifier struct {
	httpClient *http.Client
	timeout    time.Duration
	ttl        time.Duration
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	group singleflight.Group
	mu    sync.Mutex
	sets  map[string]keySet
}

func NewVerifier(timeout, cacheTTL time.Duration) *Verifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Verifier{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		ttl:        cacheTTL,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		sets:       make(map[string]keySet),
	}
}

// Close stops the background key set refreshes.
func (v *Verifier) Close() {
	v.mu.Lock()
	for url, ks := range v.sets {
		ks.stop()
		delete(v.sets, url)
	}
	v.mu.Unlock()
	v.cancel()
}

// ParseUnverified decodes claims without checking the signature. Nothing read from
// the result may be trusted until Verify succeeds.
func ParseUnverified(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("ParseUnverified: %v: %w", err, domain.ErrInvalidRequest)
	}
	if claims.ID == "" || claims.Issuer == "" {
		return nil, fmt.Errorf("ParseUnverified: missing iss or jti: %w", domain.ErrInvalidRequest)
	}
	return claims, nil
}

// Verify checks the RS256 signature of token with the key set of bank and returns its
// claims. The token must name bank as its issuer.
func (v *Verifier) Verify(ctx context.Context, token string, bank domain.Bank) (*Claims, error) {
	kf, err := v.lookup(bank.KeySetURL)
	if err != nil {
		return nil, fmt.Errorf("Verify: %w", err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(token, claims, kf.KeyfuncCtx(lookupCtx),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(bank.Prefix),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("Verify: %v: %w", err, domain.ErrInvalidAssertion)
	}
	return claims, nil
}

// lookup returns the key lookup for one bank's key set URL. The first call fetches
// the set; if that fetch fails nothing is cached and the error wraps ErrTransport.
func (v *Verifier) lookup(url string) (keyfunc.Keyfunc, error) {
	if ks, ok := v.cached(url); ok {
		return ks.kf, nil
	}

	res, err, _ := v.group.Do(url, func() (any, error) {
		if ks, ok := v.cached(url); ok {
			return ks.kf, nil
		}

		ks, err := v.fetchKeySet(url)
		if err != nil {
			return nil, err
		}

		v.mu.Lock()
		v.sets[url] = ks
		v.mu.Unlock()
		return ks.kf, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(keyfunc.Keyfunc), nil
}

func (v *Verifier) cached(url string) (keySet, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ks, ok := v.sets[url]
	return ks, ok
}

func (v *Verifier) fetchKeySet(url string) (keySet, error) {
	log := logging.FromContext(v.ctx).With("key_set_url", url)

	// The refresh goroutine starts before the first fetch, so each set gets its own
	// context that is cancelled if that fetch fails.
	ctx, stop := context.WithCancel(v.ctx)

	start := time.Now()
	storage, err := jwkset.NewStorageFromHTTP(url, jwkset.HTTPClientStorageOptions{
		Client:          v.httpClient,
		Ctx:             ctx,
		HTTPTimeout:     v.timeout,
		RefreshInterval: v.ttl,
		RefreshErrorHandler: func(_ context.Context, err error) {
			log.Warn("key set refresh failed, keeping cached keys", "error", err)
		},
	})
	if err != nil {
		stop()
		return keySet{}, fmt.Errorf("fetch key set %s: %v: %w", url, err, domain.ErrTransport)
	}
	log.Debug("key set fetched", "duration_ms", time.Since(start).Milliseconds())

	client, err := jwkset.NewHTTPClient(jwkset.HTTPClientOptions{
		HTTPURLs:          map[string]jwkset.Storage{url: storage},
		RateLimitWaitMax:  v.timeout,
		RefreshUnknownKID: rate.NewLimiter(rate.Every(unknownKIDRefreshEvery), 1),
	})
	if err != nil {
		stop()
		return keySet{}, fmt.Errorf("key set client %s: %v: %w", url, err, domain.ErrTransport)
	}

	kf, err := keyfunc.New(keyfunc.Options{
		Ctx:          ctx,
		Storage:      client,
		UseWhitelist: []jwkset.USE{jwkset.UseSig},
	})
	if err != nil {
		stop()
		return keySet{}, fmt.Errorf("key set keyfunc %s: %v: %w", url, err, domain.ErrTransport)
	}
	return keySet{kf: kf, stop: stop}, nil
}
