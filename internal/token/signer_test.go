package token

import (
	"errors"
	"testing"
	"time"
)

func newTestSigner(t *testing.T, ttl time.Duration) *Signer {
	t.Helper()
	return &Signer{master: []byte("test-master-secret"), ttl: ttl}
}

func TestSigner_MintVerify_RoundTrip(t *testing.T) {
	s := newTestSigner(t, time.Hour)
	now := time.Now()

	tok, err := s.Mint("sess-1", "user-1", "video-1", now)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	sessionID, userID, videoID, err := s.Verify(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sessionID != "sess-1" || userID != "user-1" || videoID != "video-1" {
		t.Errorf("scope mismatch: got (%s, %s, %s)", sessionID, userID, videoID)
	}
}

func TestSigner_Verify_Expired(t *testing.T) {
	s := newTestSigner(t, time.Minute)
	now := time.Now()

	tok, err := s.Mint("sess-1", "user-1", "video-1", now)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	_, _, _, err = s.Verify(tok, now.Add(2*time.Minute))
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestSigner_Verify_TamperRejected(t *testing.T) {
	s := newTestSigner(t, time.Hour)
	now := time.Now()

	tok, err := s.Mint("sess-1", "user-1", "video-1", now)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	tampered := "x" + tok[1:]
	if _, _, _, err := s.Verify(tampered, now); err == nil {
		t.Error("tampered token verified successfully")
	}

	other := &Signer{master: []byte("other-secret"), ttl: time.Hour}
	if _, _, _, err := other.Verify(tok, now); !errors.Is(err, ErrTokenSignature) {
		t.Errorf("expected ErrTokenSignature from foreign signer, got %v", err)
	}
}

func TestSigner_WatermarkRef_StableAndDistinct(t *testing.T) {
	s := newTestSigner(t, time.Hour)

	a1, err := s.WatermarkRef("user-a")
	if err != nil {
		t.Fatalf("WatermarkRef: %v", err)
	}
	a2, _ := s.WatermarkRef("user-a")
	b, _ := s.WatermarkRef("user-b")

	if a1 != a2 {
		t.Errorf("watermark ref not stable: %s vs %s", a1, a2)
	}
	if a1 == b {
		t.Error("watermark refs collide across users")
	}
	if len(a1) == 0 {
		t.Error("empty watermark ref")
	}
}
