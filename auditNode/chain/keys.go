package chain

import (
	"crypto/ecdsa"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// LoadKey returns the node's signing key from a hex private key, or failing that from an
// encrypted keystore file.
func LoadKey(keystoreFile, passphrase, privateKeyHex string) (*ecdsa.PrivateKey, error) {
	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
		if err != nil {
			return nil, errors.Wrap(err, "invalid private key")
		}
		return key, nil
	}
	if keystoreFile == "" {
		return nil, errors.New("no key material configured")
	}

	blob, err := os.ReadFile(keystoreFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read keystore file %s", keystoreFile)
	}
	key, err := keystore.DecryptKey(blob, passphrase)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt keystore")
	}
	return key.PrivateKey, nil
}
