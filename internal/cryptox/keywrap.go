package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	"github.com/vkarpenko/filevault/internal/common"
)

// WrapKey encrypts a symmetric key for the recipient's RSA public key and
// returns it base64-rendered. The 32-byte key is well under the 2048-bit
// modulus minus padding overhead, which is the whole point of the hybrid
// scheme: RSA cannot encrypt arbitrary-length file content.
func WrapKey(symmetricKey []byte, recipientPublicKey *rsa.PublicKey) (string, error) {
	wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, recipientPublicKey, symmetricKey)
	if err != nil {
		return "", fmt.Errorf("wrap key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// UnwrapKey decrypts a wrapped-key blob with the recipient's private key.
// A corrupt blob or a key that does not correspond to the wrapping public
// key yields common.ErrUnwrap.
func UnwrapKey(blob string, recipientPrivateKey *rsa.PrivateKey) ([]byte, error) {
	wrapped, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, common.ErrUnwrap
	}
	key, err := rsa.DecryptPKCS1v15(rand.Reader, recipientPrivateKey, wrapped)
	if err != nil {
		return nil, common.ErrUnwrap
	}
	return key, nil
}
