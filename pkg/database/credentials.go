package database

import (
	"fmt"

	"github.com/gestiohq/gestio/pkg/keyring"
)

const (
	// Keyring service name for control-plane database credentials
	ControlPlaneKeyringService = "gestio-controlplane"
	ControlPlanePasswordKey    = "postgres-password"
)

// GetControlPlanePassword retrieves the control-plane database password from
// the keyring. Used when GESTIO_CONTROLPLANE_PASSWORD is not set.
func GetControlPlanePassword() (string, error) {
	km := keyring.NewManagerWithBackend(
		keyring.GetDefaultKeyringPath(),
		keyring.GetMasterPasswordFromEnv(),
		keyring.GetBackendFromEnv(),
	)

	password, err := km.Get(ControlPlaneKeyringService, ControlPlanePasswordKey)
	if err != nil {
		return "", fmt.Errorf("control-plane password not found in keyring - has the node been initialized? Error: %w", err)
	}
	return password, nil
}

// SetControlPlanePassword stores the control-plane database password in the
// keyring. Used by the provision command when a node is initialized.
func SetControlPlanePassword(password string) error {
	km := keyring.NewManagerWithBackend(
		keyring.GetDefaultKeyringPath(),
		keyring.GetMasterPasswordFromEnv(),
		keyring.GetBackendFromEnv(),
	)
	return km.Set(ControlPlaneKeyringService, ControlPlanePasswordKey, password)
}
