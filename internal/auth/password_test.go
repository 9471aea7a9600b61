package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher_HashAndCompare(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if hash == "secret1" {
		t.Fatal("hash must not equal the plaintext")
	}

	ok, err := h.Compare(hash, "secret1")
	if err != nil || !ok {
		t.Fatalf("Compare(correct) = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = h.Compare(hash, "wrong")
	if err != nil || ok {
		t.Fatalf("Compare(wrong) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestPasswordHasher_SaltDiffersPerHash(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	a, _ := h.Hash("same-password")
	b, _ := h.Hash("same-password")
	if a == b {
		t.Error("two hashes of the same password should differ")
	}
}

func TestNewPasswordHasher_InvalidCostFallsBackToDefault(t *testing.T) {
	if got := NewPasswordHasher(0).cost; got != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", got, bcrypt.DefaultCost)
	}
	if got := NewPasswordHasher(bcrypt.MaxCost + 1).cost; got != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", got, bcrypt.DefaultCost)
	}
}

func TestPasswordHasher_CompareMalformedHash(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	if _, err := h.Compare("not-a-bcrypt-hash", "secret"); err == nil {
		t.Error("expected error for malformed hash")
	}
}

func TestPasswordHasher_CompareDummy_DoesNotPanic(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)
	h.CompareDummy("anything")
	h.CompareDummy(strings.Repeat("x", 100))
	if h.dummyHash == nil {
		t.Error("dummy hash should be initialised")
	}
}
