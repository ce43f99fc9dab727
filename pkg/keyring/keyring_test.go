package keyring

import (
	"path/filepath"
	"testing"
)

func TestFileKeyringSetGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyring.json")
	fk := NewFileKeyring(path, "master-password")

	if err := fk.Set("gestio-test", "db-password", "s3cret"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := fk.Get("gestio-test", "db-password")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "s3cret" {
		t.Errorf("Get = %q, want %q", got, "s3cret")
	}

	if err := fk.Delete("gestio-test", "db-password"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := fk.Get("gestio-test", "db-password"); err == nil {
		t.Error("expected error after delete")
	}
}

func TestFileKeyringMultipleEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyring.json")
	fk := NewFileKeyring(path, "master-password")

	entries := map[string]string{
		"alpha": "one",
		"beta":  "two",
		"gamma": "three",
	}
	for user, value := range entries {
		if err := fk.Set("gestio-test", user, value); err != nil {
			t.Fatalf("Set(%s) failed: %v", user, err)
		}
	}

	for user, want := range entries {
		got, err := fk.Get("gestio-test", user)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", user, err)
		}
		if got != want {
			t.Errorf("Get(%s) = %q, want %q", user, got, want)
		}
	}
}

func TestFileKeyringWrongMasterPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyring.json")

	fk := NewFileKeyring(path, "correct-password")
	if err := fk.Set("gestio-test", "key", "value"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	other := NewFileKeyring(path, "wrong-password")
	if _, err := other.Get("gestio-test", "key"); err == nil {
		t.Error("expected decryption failure with wrong master password")
	}
}

func TestFileKeyringMissingFile(t *testing.T) {
	fk := NewFileKeyring(filepath.Join(t.TempDir(), "missing.json"), "pw")

	if _, err := fk.Get("gestio-test", "key"); err == nil {
		t.Error("expected error for missing keyring file")
	}
	if err := fk.Delete("gestio-test", "key"); err != nil {
		t.Errorf("Delete on missing file should be a no-op, got %v", err)
	}
}

func TestManagerFileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyring.json")
	m := NewManagerWithBackend(path, "master-password", "file")

	if err := m.Set("gestio-test", "cipher-key", "topsecret"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := m.Get("gestio-test", "cipher-key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "topsecret" {
		t.Errorf("Get = %q, want %q", got, "topsecret")
	}
}
