package ssh

import (
	"errors"
	"fmt"
	"os"

	xssh "golang.org/x/crypto/ssh"
)

// LoadPrivateKeySigner reads an unencrypted OpenSSH/PEM private key file and returns an ssh.Signer.
func LoadPrivateKeySigner(privateKeyPath string) (xssh.Signer, error) {
	data, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := xssh.ParsePrivateKey(data)
	if err != nil {
		var missing *xssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("private key %s is encrypted; passphrase-protected keys are not supported", privateKeyPath)
		}
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return signer, nil
}
