package security

import (
	"strings"
	"testing"
)

func TestRandomToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := RandomToken(10)
		if err != nil {
			t.Fatalf("RandomToken() = %v", err)
		}
		if len(token) != 10 {
			t.Fatalf("token length = %d, want 10", len(token))
		}
		for _, c := range token {
			if !strings.ContainsRune(tokenAlphabet, c) {
				t.Fatalf("token %q contains %q outside the alphabet", token, c)
			}
		}
		if seen[token] {
			t.Fatalf("duplicate token %q in 50 draws", token)
		}
		seen[token] = true
	}
}

func TestShareTokenLength(t *testing.T) {
	for i := 0; i < 100; i++ {
		n := ShareTokenLength()
		if n < 8 || n > 10 {
			t.Fatalf("ShareTokenLength() = %d, want 8..10", n)
		}
	}
}

func TestSessionToken(t *testing.T) {
	a, err := SessionToken()
	if err != nil {
		t.Fatalf("SessionToken() = %v", err)
	}
	b, err := SessionToken()
	if err != nil {
		t.Fatalf("SessionToken() = %v", err)
	}
	if a == b {
		t.Error("two session tokens are identical")
	}
	if len(a) < 40 {
		t.Errorf("session token too short: %d chars", len(a))
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	salt, hash, iters, err := HashPassword("correct horse", 1000)
	if err != nil {
		t.Fatalf("HashPassword() = %v", err)
	}
	if iters != 1000 {
		t.Errorf("iterations = %d, want 1000", iters)
	}

	if !VerifyPassword("correct horse", salt, hash, iters) {
		t.Error("VerifyPassword(correct password) = false, want true")
	}
	if VerifyPassword("battery staple", salt, hash, iters) {
		t.Error("VerifyPassword(wrong password) = true, want false")
	}
	if VerifyPassword("correct horse", salt, hash, iters+1) {
		t.Error("VerifyPassword(wrong iterations) = true, want false")
	}
}

func TestVerifyPassword_MalformedInputs(t *testing.T) {
	if VerifyPassword("x", "not base64!!", "AAAA", 1000) {
		t.Error("VerifyPassword(bad salt) = true, want false")
	}
	if VerifyPassword("x", "AAAA", "not base64!!", 1000) {
		t.Error("VerifyPassword(bad hash) = true, want false")
	}
}

func TestHashPassword_DefaultIterations(t *testing.T) {
	_, _, iters, err := HashPassword("pw", 0)
	if err != nil {
		t.Fatalf("HashPassword() = %v", err)
	}
	if iters != DefaultIterations {
		t.Errorf("iterations = %d, want %d", iters, DefaultIterations)
	}
}
