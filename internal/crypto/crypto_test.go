package crypto

import "testing"

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if err := CheckPassword(hash, "secret"); err != nil {
		t.Fatalf("expected password to match")
	}
	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatalf("expected password mismatch")
	}
}

func TestTokenHashing(t *testing.T) {
	if HashToken("abc") == "abc" {
		t.Fatalf("expected hash to differ from token")
	}
	if HashToken("abc") != HashToken("abc") {
		t.Fatalf("expected hash to be deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatalf("expected distinct hashes for distinct tokens")
	}
}
