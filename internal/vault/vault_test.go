package vault

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/shaiso/Swarm/internal/chain"
)

func TestSealOpen(t *testing.T) {
	v, err := New(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sealed, err := v.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("secret")) {
		t.Fatal("sealed data contains plaintext")
	}

	out, err := v.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(out) != "secret" {
		t.Errorf("Open = %q, want %q", out, "secret")
	}

	again, _ := v.Seal([]byte("secret"))
	if bytes.Equal(sealed, again) {
		t.Error("two seals of the same data must differ (random nonce)")
	}
}

func TestOpen_WrongKey(t *testing.T) {
	a, _ := New("passphrase-a")
	b, _ := New("passphrase-b")

	sealed, err := a.Seal([]byte("data"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := b.Open(sealed); !errors.Is(err, ErrOpenFailed) {
		t.Errorf("Open with wrong key: got %v, want ErrOpenFailed", err)
	}
	if _, err := a.Open(sealed[:10]); !errors.Is(err, ErrSealedTooShort) {
		t.Errorf("Open truncated: got %v, want ErrSealedTooShort", err)
	}
}

func TestSealKey(t *testing.T) {
	v, _ := New("passphrase")
	key, err := chain.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}

	sealed, err := v.SealKey(key)
	if err != nil {
		t.Fatalf("SealKey: %v", err)
	}
	got, err := v.OpenKey(sealed)
	if err != nil {
		t.Fatalf("OpenKey: %v", err)
	}
	if !got.PublicKey().Equals(key.PublicKey()) {
		t.Error("OpenKey returned a different key")
	}
}

func TestNew_EmptyKey(t *testing.T) {
	if _, err := New(""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("New(\"\") = %v, want ErrInvalidKey", err)
	}
}
