package auth

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	capabilityAudience = "download"

	DefaultCapabilityTTL = 60 * time.Second
)

// Capability is a verified download grant.
type Capability struct {
	FileID      string
	RequesterID string
	ExpiresAt   time.Time
}

type capabilityClaims struct {
	jwt.RegisteredClaims
	FileID string `json:"fid"`
}

// CapabilityIssuer mints stateless, signed, expiring tokens that bind one
// file to one requester. Nothing is stored server side, so a token can be
// replayed until it expires.
type CapabilityIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCapabilityIssuer(secret []byte, ttl time.Duration) (*CapabilityIssuer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty token secret", common.ErrConfiguration)
	}
	if ttl <= 0 {
		ttl = DefaultCapabilityTTL
	}
	return &CapabilityIssuer{secret: secret, ttl: ttl, now: time.Now}, nil
}

func (i *CapabilityIssuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for fileID on behalf of requesterID.
func (i *CapabilityIssuer) Issue(fileID, requesterID string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, capabilityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   requesterID,
			Audience:  jwt.ClaimStrings{capabilityAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		FileID: fileID,
	})

	s, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign capability: %w", err)
	}
	return s, exp, nil
}

// Verify checks signature and expiry and returns the bound claims. Any
// failure is common.ErrUnauthorized.
func (i *CapabilityIssuer) Verify(token string) (*Capability, error) {
	claims := &capabilityClaims{}
	if err := parse(token, claims, i.secret, capabilityAudience, i.now); err != nil {
		return nil, err
	}
	if claims.FileID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Capability{
		FileID:      claims.FileID,
		RequesterID: claims.Subject,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}
