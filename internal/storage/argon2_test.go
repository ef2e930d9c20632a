package storage

import (
	"strings"
	"testing"
)

func TestHashAndVerifyKey(t *testing.T) {
	secret := "sg_testSecret1234567890"

	hash, err := HashKey(secret, DefaultArgon2Params())
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("expected argon2id encoded hash, got %q", hash)
	}

	ok, err := VerifyKey(secret, hash)
	if err != nil {
		t.Fatalf("VerifyKey failed: %v", err)
	}
	if !ok {
		t.Error("correct secret must verify")
	}

	ok, err = VerifyKey("sg_wrongSecret", hash)
	if err != nil {
		t.Fatalf("VerifyKey failed: %v", err)
	}
	if ok {
		t.Error("wrong secret must not verify")
	}
}

func TestHashKeySaltsDiffer(t *testing.T) {
	secret := "sg_sameSecret"

	a, err := HashKey(secret, DefaultArgon2Params())
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}
	b, err := HashKey(secret, DefaultArgon2Params())
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}
	if a == b {
		t.Error("hashes of the same secret must use different salts")
	}
}

func TestVerifyKeyMalformedHash(t *testing.T) {
	tests := []string{
		"",
		"not-a-hash",
		"$argon2id$v=19$m=65536",
		"$bcrypt$whatever",
	}

	for _, hash := range tests {
		if _, err := VerifyKey("secret", hash); err == nil {
			t.Errorf("expected error for malformed hash %q", hash)
		}
	}
}
