package secret

import (
	"bytes"
	"testing"
)

func TestDeriveKeyIsDeterministic(t *testing.T) {
	first, err := DeriveKey("correct horse battery", "deployment-salt")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	second, err := DeriveKey("correct horse battery", "deployment-salt")
	if err != nil {
		t.Fatalf("derive again: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("expected identical keys for identical inputs")
	}
	if len(first) != 32 {
		t.Fatalf("key length = %d, want 32", len(first))
	}
}

func TestDeriveKeySaltChangesKey(t *testing.T) {
	first, err := DeriveKey("correct horse battery", "deployment-salt")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	second, err := DeriveKey("correct horse battery", "other-salt-value")
	if err != nil {
		t.Fatalf("derive with other salt: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Fatal("expected different keys for different salts")
	}
}

func TestDeriveKeyValidation(t *testing.T) {
	if _, err := DeriveKey("", "deployment-salt"); err == nil {
		t.Fatal("expected error for empty passphrase")
	}
	if _, err := DeriveKey("passphrase", "tiny"); err == nil {
		t.Fatal("expected error for short salt")
	}
}

func TestNewSealerFromPassphraseRoundTrip(t *testing.T) {
	sealer, err := NewSealerFromPassphrase("passphrase", "deployment-salt")
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	sealed, err := sealer.Seal("access-token")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	opened, err := sealer.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "access-token" {
		t.Fatalf("opened = %q, want %q", opened, "access-token")
	}
}
