package activitypub

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"testing"
	"time"
)

func generateTestKeyPair(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	return privateKey
}

// calculateDigest calculates the SHA-256 digest header value for a body
func calculateDigest(body []byte) string {
	hash := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(hash[:])
}

func publicKeyToPEM(t *testing.T, key *rsa.PublicKey) string {
	t.Helper()
	keyBytes, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: keyBytes}))
}

// signedRequest builds, headers, and signs a request ready for verification
func signedRequest(t *testing.T, method, url string, body []byte, key *rsa.PrivateKey, keyId string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", "example.com")
	req.Header.Set("Digest", calculateDigest(body))

	if err := SignRequest(req, key, keyId); err != nil {
		t.Fatalf("SignRequest failed: %v", err)
	}

	// Signing consumes the body, rebuild the request for the verifier
	req2, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to recreate request: %v", err)
	}
	req2.Header = req.Header.Clone()
	return req2
}

func TestSignAndVerifyRoundtrip(t *testing.T) {
	key := generateTestKeyPair(t)
	publicPEM := publicKeyToPEM(t, &key.PublicKey)

	tests := []struct {
		name   string
		method string
		url    string
		body   []byte
	}{
		{"POST with body", "POST", "https://example.com/inbox", []byte(`{"type":"Create","object":{}}`)},
		{"GET without body", "GET", "https://example.com/users/alice", []byte{}},
		{"POST to different path", "POST", "https://example.com/users/bob/inbox", []byte(`{"type":"Follow"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keyId := "https://myserver.com/users/testuser#main-key"
			req := signedRequest(t, tt.method, tt.url, tt.body, key, keyId)

			actorURI, err := VerifyRequest(req, publicPEM)
			if err != nil {
				t.Fatalf("VerifyRequest failed: %v", err)
			}
			if actorURI != "https://myserver.com/users/testuser" {
				t.Errorf("Expected actor URI without fragment, got '%s'", actorURI)
			}
		})
	}
}

func TestVerifyRequestInvalidSignature(t *testing.T) {
	signingKey := generateTestKeyPair(t)
	otherKey := generateTestKeyPair(t)
	otherPEM := publicKeyToPEM(t, &otherKey.PublicKey)

	req := signedRequest(t, "POST", "https://example.com/inbox",
		[]byte(`{"type":"Create"}`), signingKey, "https://myserver.com/users/alice#main-key")

	if _, err := VerifyRequest(req, otherPEM); err == nil {
		t.Error("Expected verification to fail with wrong public key")
	}
}

func TestVerifyRequestTamperedBody(t *testing.T) {
	key := generateTestKeyPair(t)
	publicPEM := publicKeyToPEM(t, &key.PublicKey)

	req := signedRequest(t, "POST", "https://example.com/inbox",
		[]byte(`{"type":"Create"}`), key, "https://myserver.com/users/alice#main-key")

	// Replace the digest after signing
	req.Header.Set("Digest", calculateDigest([]byte(`{"type":"Delete"}`)))

	if _, err := VerifyRequest(req, publicPEM); err == nil {
		t.Error("Expected verification to fail for tampered digest")
	}
}

func TestVerifyRequestInvalidPEM(t *testing.T) {
	tests := []struct {
		name string
		pem  string
	}{
		{"garbage", "invalid PEM"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest("POST", "https://example.com/inbox", nil)
			if err != nil {
				t.Fatalf("Failed to create request: %v", err)
			}
			if _, err := VerifyRequest(req, tt.pem); err == nil {
				t.Error("Expected error for invalid PEM")
			}
		})
	}
}

func TestKeyIdWithoutFragment(t *testing.T) {
	key := generateTestKeyPair(t)
	publicPEM := publicKeyToPEM(t, &key.PublicKey)

	keyId := "https://myserver.com/users/alice"
	req := signedRequest(t, "POST", "https://example.com/inbox", []byte(`{"type":"Create"}`), key, keyId)

	actorURI, err := VerifyRequest(req, publicPEM)
	if err != nil {
		t.Fatalf("VerifyRequest failed: %v", err)
	}
	if actorURI != keyId {
		t.Errorf("Expected actor URI '%s', got '%s'", keyId, actorURI)
	}
}

func TestParsePrivateKeyBothFormats(t *testing.T) {
	privateKey := generateTestKeyPair(t)

	pkcs1PEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	parsed1, err := ParsePrivateKey(string(pkcs1PEM))
	if err != nil {
		t.Fatalf("Failed to parse PKCS#1 private key: %v", err)
	}
	if parsed1.N.Cmp(privateKey.N) != 0 {
		t.Error("PKCS#1 parsed key doesn't match original")
	}

	pkcs8Bytes, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		t.Fatalf("Failed to marshal PKCS#8 key: %v", err)
	}
	pkcs8PEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8Bytes})
	parsed2, err := ParsePrivateKey(string(pkcs8PEM))
	if err != nil {
		t.Fatalf("Failed to parse PKCS#8 private key: %v", err)
	}
	if parsed2.N.Cmp(privateKey.N) != 0 {
		t.Error("PKCS#8 parsed key doesn't match original")
	}
}

func TestParsePrivateKeyInvalidPEM(t *testing.T) {
	for _, input := range []string{"not a valid PEM", ""} {
		if _, err := ParsePrivateKey(input); err == nil {
			t.Errorf("Expected error for input %q", input)
		}
	}
}

func TestParsePublicKey(t *testing.T) {
	key := generateTestKeyPair(t)
	pemString := publicKeyToPEM(t, &key.PublicKey)

	parsed, err := ParsePublicKey(pemString)
	if err != nil {
		t.Fatalf("ParsePublicKey failed: %v", err)
	}
	if parsed.N.Cmp(key.PublicKey.N) != 0 {
		t.Error("Parsed key doesn't match original")
	}
}

func TestParsePublicKeyInvalidPEM(t *testing.T) {
	for _, input := range []string{"not a valid PEM", ""} {
		if _, err := ParsePublicKey(input); err == nil {
			t.Errorf("Expected error for input %q", input)
		}
	}
}
