package token

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"golang.org/x/crypto/hkdf"

	"stream-service/internal/config"
	"stream-service/internal/util"
)

var (
	ErrTokenExpired   = errors.New("access token expired")
	ErrTokenMalformed = errors.New("access token malformed")
	ErrTokenSignature = errors.New("access token signature mismatch")
)

// Signer mints the short-lived access tokens embedded in manifests.
// Tokens are scoped to (sessionID, userID, videoID) and opaque to the
// rest of the service; the media origin checks them at the edge.
//
// The master secret comes from config, or from a KMS data key when KMS
// is enabled; per-purpose keys are derived from it with HKDF-SHA256 so
// a leaked stream key never exposes the watermark key.
type Signer struct {
	master []byte
	ttl    time.Duration
}

// NewSigner builds a signer from config, contacting KMS only when enabled.
func NewSigner(ctx context.Context, cfg *config.Config) (*Signer, error) {
	master, err := loadMasterSecret(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Signer{master: master, ttl: cfg.Streaming.TokenTTL}, nil
}

func loadMasterSecret(ctx context.Context, cfg *config.Config) ([]byte, error) {
	if cfg.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.KMS.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}

		client := kms.NewFromConfig(awsCfg)
		out, err := client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
			KeyId:   aws.String(cfg.KMS.KeyID),
			KeySpec: types.DataKeySpecAes256,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to generate KMS data key: %w", err)
		}

		util.Info("Token master secret sourced from KMS",
			util.String("key_id", cfg.KMS.KeyID))
		return out.Plaintext, nil
	}

	if secret := cfg.Streaming.TokenSecret; secret != "" {
		return []byte(secret), nil
	}

	// Dev fallback: random secret, tokens do not survive a restart.
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate local token secret: %w", err)
	}
	util.Warn("STREAM_TOKEN_SECRET not set, using ephemeral random secret")
	return secret, nil
}

// deriveKey expands the master secret into a purpose-bound key.
func (s *Signer) deriveKey(purpose string) ([]byte, error) {
	r := hkdf.New(sha256.New, s.master, nil, []byte(purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf expand failed: %w", err)
	}
	return key, nil
}

// Mint signs an access token for the given session scope.
// Format: base64url(sessionID:userID:videoID:expiresUnix).base64url(hmac).
func (s *Signer) Mint(sessionID, userID, videoID string, now time.Time) (string, error) {
	key, err := s.deriveKey("stream-access")
	if err != nil {
		return "", err
	}

	expires := now.Add(s.ttl).Unix()
	payload := strings.Join([]string{sessionID, userID, videoID, strconv.FormatInt(expires, 10)}, ":")

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))

	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." +
		base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

// Verify checks a token's signature and expiry and returns its scope.
// The media origin is the normal caller; the service itself only uses
// this in tests and diagnostics.
func (s *Signer) Verify(token string, now time.Time) (sessionID, userID, videoID string, err error) {
	dot := strings.IndexByte(token, '.')
	if dot < 0 {
		return "", "", "", ErrTokenMalformed
	}

	payloadRaw, err := base64.RawURLEncoding.DecodeString(token[:dot])
	if err != nil {
		return "", "", "", ErrTokenMalformed
	}
	sig, err := base64.RawURLEncoding.DecodeString(token[dot+1:])
	if err != nil {
		return "", "", "", ErrTokenMalformed
	}

	key, err := s.deriveKey("stream-access")
	if err != nil {
		return "", "", "", err
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(payloadRaw)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return "", "", "", ErrTokenSignature
	}

	parts := strings.Split(string(payloadRaw), ":")
	if len(parts) != 4 {
		return "", "", "", ErrTokenMalformed
	}

	expires, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return "", "", "", ErrTokenMalformed
	}
	if now.Unix() > expires {
		return "", "", "", ErrTokenExpired
	}

	return parts[0], parts[1], parts[2], nil
}

// WatermarkRef derives the short, stable, non-spoofable viewer reference
// embedded in the player watermark. Same user, same reference; nobody
// without the key can forge another user's reference.
func (s *Signer) WatermarkRef(userID string) (string, error) {
	key, err := s.deriveKey("viewer-watermark")
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(userID))
	sum := mac.Sum(nil)

	return strings.ToUpper(base64.RawURLEncoding.EncodeToString(sum[:6])), nil
}
