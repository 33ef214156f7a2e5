// Package rtc mints the tokens clients present to the video-conferencing provider
// when joining a meeting room.
package rtc

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingCredentials is returned when the provider secret is not configured.
var ErrMissingCredentials = errors.New("rtc provider credentials are not configured")

// DefaultTTL is how long a room token stays valid.
const DefaultTTL = time.Hour

// Token is a signed room credential.
type Token struct {
	Provider  string    `json:"provider"`
	AppID     uint32    `json:"appId,omitempty"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Issuer mints room tokens.
type Issuer interface {
	Issue(userID, roomID string) (Token, error)
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// HMACIssuer produces tokens of the form appID:hexsig:base64payload where the
// signature is HMAC-SHA256 over the base64 payload.
type HMACIssuer struct {
	AppID   uint32
	Secret  string
	TTL     time.Duration
	NowFunc func() time.Time
}

type hmacPayload struct {
	AppID      uint32         `json:"app_id"`
	UserID     string         `json:"user_id"`
	RoomID     string         `json:"room_id"`
	Privilege  map[string]int `json:"privilege"`
	CreateTime int64          `json:"create_time"`
	ExpireTime int64          `json:"expire_time"`
	Nonce      uint32         `json:"nonce"`
}

// Issue signs a login-and-publish grant for userID in roomID.
func (i HMACIssuer) Issue(userID, roomID string) (Token, error) {
	if i.Secret == "" {
		return Token{}, ErrMissingCredentials
	}
	now := time.Now()
	if i.NowFunc != nil {
		now = i.NowFunc()
	}
	expires := now.Add(ttlOrDefault(i.TTL))

	var nonce [4]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return Token{}, fmt.Errorf("generate nonce: %w", err)
	}

	raw, err := json.Marshal(hmacPayload{
		AppID:      i.AppID,
		UserID:     userID,
		RoomID:     roomID,
		Privilege:  map[string]int{"1": 1, "2": 1},
		CreateTime: now.Unix(),
		ExpireTime: expires.Unix(),
		Nonce:      binary.BigEndian.Uint32(nonce[:]),
	})
	if err != nil {
		return Token{}, fmt.Errorf("encode payload: %w", err)
	}
	payload := base64.StdEncoding.EncodeToString(raw)

	return Token{
		Provider:  "hmac",
		AppID:     i.AppID,
		RoomID:    roomID,
		UserID:    userID,
		Token:     fmt.Sprintf("%d:%s:%s", i.AppID, sign(i.Secret, payload), payload),
		ExpiresAt: expires.UTC(),
	}, nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// JWTIssuer produces HS256 access tokens carrying a room grant, the format used by
// LiveKit-compatible servers.
type JWTIssuer struct {
	APIKey    string
	APISecret string
	TTL       time.Duration
	NowFunc   func() time.Time
}

// VideoGrant describes what the bearer may do in a room.
type VideoGrant struct {
	Room         string `json:"room"`
	RoomJoin     bool   `json:"roomJoin"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
}

// RoomClaims are the JWT claims minted by JWTIssuer.
type RoomClaims struct {
	Video VideoGrant `json:"video"`
	jwt.RegisteredClaims
}

// Issue signs a join/publish/subscribe grant for userID in roomID.
func (i JWTIssuer) Issue(userID, roomID string) (Token, error) {
	if i.APIKey == "" || i.APISecret == "" {
		return Token{}, ErrMissingCredentials
	}
	now := time.Now()
	if i.NowFunc != nil {
		now = i.NowFunc()
	}
	expires := now.Add(ttlOrDefault(i.TTL))

	claims := RoomClaims{
		Video: VideoGrant{Room: roomID, RoomJoin: true, CanPublish: true, CanSubscribe: true},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.APIKey,
			Subject:   userID,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.APISecret))
	if err != nil {
		return Token{}, fmt.Errorf("sign room token: %w", err)
	}

	return Token{
		Provider:  "jwt",
		RoomID:    roomID,
		UserID:    userID,
		Token:     signed,
		ExpiresAt: expires.UTC(),
	}, nil
}

// New selects an issuer by provider name.
func New(provider string, appID uint32, secret, apiKey, apiSecret string, ttl time.Duration) (Issuer, error) {
	switch provider {
	case "", "hmac":
		return HMACIssuer{AppID: appID, Secret: secret, TTL: ttl}, nil
	case "jwt":
		return JWTIssuer{APIKey: apiKey, APISecret: apiSecret, TTL: ttl}, nil
	default:
		return nil, fmt.Errorf("unknown rtc provider %q", provider)
	}
}
