// Command provision initializes a broker node's keyring: it stores the
// credential cipher secret and the control-plane database password so the
// broker can start without either in its environment.
package main

import (
	"flag"

	"github.com/gestiohq/gestio/pkg/database"
	"github.com/gestiohq/gestio/pkg/encryption"
	"github.com/gestiohq/gestio/pkg/logger"
)

var (
	cipherSecret = flag.String("cipher-secret", "", "Credential cipher secret to store in the keyring")
	cpPassword   = flag.String("controlplane-password", "", "Control-plane database password to store in the keyring")
)

func main() {
	flag.Parse()

	log := logger.New("provision", "1.0.0")

	if *cipherSecret == "" && *cpPassword == "" {
		log.Fatal("Nothing to provision: pass -cipher-secret and/or -controlplane-password")
	}

	if *cipherSecret != "" {
		cipher, err := encryption.NewCipher(*cipherSecret)
		if err == nil {
			err = cipher.SelfTest()
		}
		if err != nil {
			log.Fatalf("Cipher secret rejected: %v", err)
		}
		if err := encryption.SetCipherSecret(*cipherSecret); err != nil {
			log.Fatalf("Failed to store cipher secret: %v", err)
		}
		log.Info("Credential cipher secret stored")
	}

	if *cpPassword != "" {
		if err := database.SetControlPlanePassword(*cpPassword); err != nil {
			log.Fatalf("Failed to store control-plane password: %v", err)
		}
		log.Info("Control-plane database password stored")
	}
}
