package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/togetherplan/internal/model"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}
	if priv == "" {
		t.Error("expected non-empty private key")
	}

	// Uncompressed P-256 point.
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestConfigured(t *testing.T) {
	if NewService("", "", "mailto:ops@example.com").Configured() {
		t.Error("service without keys reports configured")
	}
	if !NewService("pub", "priv", "mailto:ops@example.com").Configured() {
		t.Error("service with keys reports unconfigured")
	}
}

// testSubscription returns a subscription with real browser-side keys so the
// payload can be encrypted.
func testSubscription(t *testing.T, endpoint string) *model.PushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("generate auth secret: %v", err)
	}
	return &model.PushSubscription{
		Endpoint:  endpoint,
		P256dhKey: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		AuthKey:   base64.RawURLEncoding.EncodeToString(secret),
	}
}

func TestSend(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	tests := []struct {
		name    string
		status  int
		wantErr error
		anyErr  bool
	}{
		{name: "created", status: http.StatusCreated},
		{name: "gone", status: http.StatusGone, wantErr: ErrExpired},
		{name: "not found", status: http.StatusNotFound, wantErr: ErrExpired},
		{name: "server error", status: http.StatusInternalServerError, anyErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth, gotEncoding string
			var bodyLen int
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				gotEncoding = r.Header.Get("Content-Encoding")
				b, _ := io.ReadAll(r.Body)
				bodyLen = len(b)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			svc := NewService(pub, priv, "mailto:ops@example.com", WithHTTPClient(srv.Client()))
			err := svc.Send(context.Background(), testSubscription(t, srv.URL+"/push/abc"), Payload{
				Title: "Invitation",
				Body:  "You're invited to Picnic",
				Tag:   "event_invitation",
			})

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
			case tt.anyErr:
				if err == nil || errors.Is(err, ErrExpired) {
					t.Errorf("err = %v, want non-expiry error", err)
				}
			default:
				if err != nil {
					t.Fatalf("send: %v", err)
				}
			}

			if !strings.HasPrefix(gotAuth, "vapid ") {
				t.Errorf("authorization = %q, want vapid scheme", gotAuth)
			}
			if gotEncoding != "aes128gcm" {
				t.Errorf("content encoding = %q, want aes128gcm", gotEncoding)
			}
			if bodyLen == 0 {
				t.Error("expected encrypted body")
			}
		})
	}
}
