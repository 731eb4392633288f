package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// GoogleCertsURL publishes Google's current ID-token signing keys as a JWKS.
const GoogleCertsURL = "https://www.googleapis.com/oauth2/v3/certs"

// Both forms appear in the "iss" claim of Google ID tokens.
var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// keysTTL bounds how long fetched signing keys are trusted. Google rotates
// its keys every few days.
const keysTTL = time.Hour

// minRefetchInterval is the minimum gap between fetch attempts. The "kid"
// header comes from the client and must not drive outbound traffic.
const minRefetchInterval = 5 * time.Minute

// googleClaims is the subset of an ID token's payload we use.
type googleClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Name          string `json:"name"`
	jwt.RegisteredClaims
}

// GoogleVerifier checks Google Sign-In ID tokens (the "credential" the
// browser receives from Google Identity Services).
//
// A token is accepted only when:
//   - it is RS256-signed by one of Google's published keys
//   - "aud" equals our OAuth client ID (a token minted for another site
//     must not log anyone in here)
//   - "iss" is Google and "exp" is in the future
//   - it carries a verified email
type GoogleVerifier struct {
	clientID   string
	certsURL   string
	httpClient *http.Client

	now   func() time.Time
	fetch singleflight.Group

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	attemptedAt time.Time
}

// NewGoogleVerifier creates a verifier for tokens issued to clientID.
func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return newGoogleVerifier(clientID, GoogleCertsURL, &http.Client{Timeout: 10 * time.Second})
}

func newGoogleVerifier(clientID, certsURL string, client *http.Client) *GoogleVerifier {
	return &GoogleVerifier{
		clientID:   clientID,
		certsURL:   certsURL,
		httpClient: client,
		now:        time.Now,
	}
}

// Verify validates idToken and returns the identity it asserts.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*Identity, error) {
	if v.clientID == "" {
		return nil, errors.New("auth: Google sign-in is not configured")
	}

	var c googleClaims
	_, err := jwt.ParseWithClaims(
		idToken,
		&c,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return v.key(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: verifying Google ID token: %w", err)
	}

	if !slices.Contains(googleIssuers, c.Issuer) {
		return nil, fmt.Errorf("auth: unexpected Google token issuer %q", c.Issuer)
	}
	email := NormalizeEmail(c.Email)
	if email == "" {
		return nil, errors.New("auth: Google token carries no email")
	}
	if !c.EmailVerified {
		return nil, fmt.Errorf("auth: Google email %s is not verified", email)
	}

	first, last := c.GivenName, c.FamilyName
	if first == "" && last == "" {
		first, last = splitName(c.Name)
	}
	return &Identity{Email: email, FirstName: first, LastName: last}, nil
}

// key returns the public key for kid, refreshing the cached set when it is
// stale or does not know kid. Within minRefetchInterval of the last attempt
// the cached set is answered from as is.
func (v *GoogleVerifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, errors.New("auth: token header has no kid")
	}

	v.mu.RLock()
	k, known := v.keys[kid]
	fetchedAt, attemptedAt := v.fetchedAt, v.attemptedAt
	v.mu.RUnlock()

	now := v.now()
	fresh := now.Sub(fetchedAt) < keysTTL
	recent := !attemptedAt.IsZero() && now.Sub(attemptedAt) < minRefetchInterval
	switch {
	case known && (fresh || recent):
		return k, nil
	case !known && recent:
		return nil, fmt.Errorf("auth: unknown Google signing key %q", kid)
	}

	keys, err := v.refresh(ctx)
	if err != nil {
		return nil, err
	}
	k, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("auth: unknown Google signing key %q", kid)
	}
	return k, nil
}

// refresh fetches the key set. Concurrent callers share one request, and
// the lock is only held to swap the result in.
func (v *GoogleVerifier) refresh(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	res, err, _ := v.fetch.Do("jwks", func() (any, error) {
		v.mu.Lock()
		now := v.now()
		if !v.attemptedAt.IsZero() && now.Sub(v.attemptedAt) < minRefetchInterval {
			// Another caller fetched between our check and this call.
			keys := v.keys
			v.mu.Unlock()
			if keys == nil {
				return nil, errors.New("auth: Google signing keys are unavailable")
			}
			return keys, nil
		}
		v.attemptedAt = now
		v.mu.Unlock()

		// Shared by every waiter, so one caller giving up must not fail
		// the others. httpClient carries the timeout.
		keys, err := v.fetchKeys(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		v.mu.Lock()
		v.keys = keys
		v.fetchedAt = v.now()
		v.mu.Unlock()
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(map[string]*rsa.PublicKey), nil
}

// jwks is the JSON Web Key Set document format (RFC 7517).
type jwks struct {
	Keys []struct {
		Kid string `json:"kid"`
		Kty string `json:"kty"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

func (v *GoogleVerifier) fetchKeys(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building JWKS request: %w", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: fetching Google signing keys: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Google signing keys returned status %d", resp.StatusCode)
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("auth: decoding Google signing keys: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		n, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			return nil, fmt.Errorf("auth: decoding modulus of key %s: %w", k.Kid, err)
		}
		e, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			return nil, fmt.Errorf("auth: decoding exponent of key %s: %w", k.Kid, err)
		}
		keys[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(n),
			E: int(new(big.Int).SetBytes(e).Int64()),
		}
	}
	return keys, nil
}
