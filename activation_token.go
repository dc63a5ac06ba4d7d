package account

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultActivationTokenTTL bounds how long an activation link stays usable,
// independent of any state change.
const DefaultActivationTokenTTL = 72 * time.Hour

// ActivationTokens issues and checks the tokens embedded in activation links.
//
// A token is "<timestamp base36>-<mac>" where the MAC covers the user id, the
// password hash, the active flag, and the activation timestamp. Consuming the
// transition (flipping IsActive) or changing the password therefore
// invalidates every outstanding token for that user without a revocation
// list. Profile edits leave tokens valid.
type ActivationTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

var _ ActivationTokenIssuer = (*ActivationTokens)(nil)

type ActivationTokenOption func(*ActivationTokens)

// WithActivationClock overrides the time source, used by expiry tests
func WithActivationClock(now func() time.Time) ActivationTokenOption {
	return func(s *ActivationTokens) {
		if now != nil {
			s.now = now
		}
	}
}

// NewActivationTokens creates a token source. A zero ttl uses the default.
func NewActivationTokens(secret []byte, ttl time.Duration, opts ...ActivationTokenOption) *ActivationTokens {
	if ttl <= 0 {
		ttl = DefaultActivationTokenTTL
	}

	s := &ActivationTokens{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Issue mints a token for the user's pending state transition
func (s *ActivationTokens) Issue(user *User) (string, error) {
	if user == nil {
		return "", ErrIdentityNotFound
	}

	ts := s.now().Unix()
	return fmt.Sprintf("%s-%s", strconv.FormatInt(ts, 36), s.signature(user, ts)), nil
}

// Check verifies a token against the user's current state. Every failure
// branch yields the same uniform activation error.
func (s *ActivationTokens) Check(user *User, token string) error {
	if user == nil || token == "" {
		return NewActivationError()
	}

	encodedTS, mac, found := strings.Cut(token, "-")
	if !found {
		return NewActivationError()
	}

	ts, err := strconv.ParseInt(encodedTS, 36, 64)
	if err != nil {
		return NewActivationError()
	}

	now := s.now().Unix()
	if ts > now || now-ts > int64(s.ttl.Seconds()) {
		return NewActivationError()
	}

	if !hmac.Equal([]byte(mac), []byte(s.signature(user, ts))) {
		return NewActivationError()
	}

	return nil
}

func (s *ActivationTokens) signature(user *User, ts int64) string {
	var activatedAt int64
	if user.ActivatedAt != nil {
		activatedAt = user.ActivatedAt.Unix()
	}

	// nul separators keep adjacent fields from colliding
	state := strings.Join([]string{
		user.ID.String(),
		user.PasswordHash,
		strconv.FormatBool(user.IsActive),
		strconv.FormatInt(activatedAt, 10),
		strconv.FormatInt(ts, 10),
	}, "\x00")

	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(state))

	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// EncodeUserID packs a user id into the URL-safe form used in activation links
func EncodeUserID(id uuid.UUID) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id.String()))
}

// DecodeUserID reverses EncodeUserID
func DecodeUserID(encoded string) (uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(string(raw))
}
