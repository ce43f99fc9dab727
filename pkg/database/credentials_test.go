package database

import (
	"path/filepath"
	"testing"
)

func useFileKeyring(t *testing.T) {
	t.Helper()
	t.Setenv("GESTIO_KEYRING_BACKEND", "file")
	t.Setenv("GESTIO_KEYRING_PATH", filepath.Join(t.TempDir(), "keyring.json"))
	t.Setenv("GESTIO_KEYRING_PASSWORD", "test-master-password")
}

func TestControlPlanePasswordRoundTrip(t *testing.T) {
	useFileKeyring(t)

	if err := SetControlPlanePassword("cp-secret"); err != nil {
		t.Fatalf("SetControlPlanePassword failed: %v", err)
	}

	got, err := GetControlPlanePassword()
	if err != nil {
		t.Fatalf("GetControlPlanePassword failed: %v", err)
	}
	if got != "cp-secret" {
		t.Errorf("password = %q, want cp-secret", got)
	}
}

func TestFromEnvFallsBackToKeyringPassword(t *testing.T) {
	useFileKeyring(t)
	t.Setenv("GESTIO_CONTROLPLANE_PASSWORD", "")

	if err := SetControlPlanePassword("keyring-only"); err != nil {
		t.Fatalf("SetControlPlanePassword failed: %v", err)
	}

	cfg := FromEnv()
	if cfg.Password != "keyring-only" {
		t.Errorf("Password = %q, want keyring-only", cfg.Password)
	}
}

func TestGetControlPlanePasswordUnprovisioned(t *testing.T) {
	useFileKeyring(t)

	if _, err := GetControlPlanePassword(); err == nil {
		t.Error("expected error before provisioning")
	}
}
