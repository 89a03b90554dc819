// Package sealing encrypts replacement signer secrets with age. The service
// seals with a recipient on request creation and only the executor opens
// with the matching identity. Ciphertext is stored base64 encoded.
package sealing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
)

type Sealer struct {
	recipients []age.Recipient
}

func NewSealer(recipientKeys ...string) (*Sealer, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key: %w", err)
		}
		recipients = append(recipients, recipient)
	}
	return &Sealer{recipients: recipients}, nil
}

func (s *Sealer) Seal(plaintext []byte) (string, error) {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, s.recipients...)
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext.Bytes()), nil
}

type Opener struct {
	identities []age.Identity
}

func NewOpener(identities ...age.Identity) (*Opener, error) {
	if len(identities) == 0 {
		return nil, fmt.Errorf("at least one identity is required")
	}
	return &Opener{identities: identities}, nil
}

// NewOpenerFromFile reads age identities in the standard key file format.
func NewOpenerFromFile(path string) (*Opener, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parsing identity file: %w", err)
	}
	return NewOpener(identities...)
}

// Open returns the plaintext. Callers own the slice and should zero it.
func (o *Opener) Open(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 ciphertext: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(raw), o.identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return plaintext, nil
}

// GenerateKeypair returns a fresh identity and its recipient string, for
// tests and local setups.
func GenerateKeypair() (*age.X25519Identity, string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, "", fmt.Errorf("generating age keypair: %w", err)
	}
	return identity, identity.Recipient().String(), nil
}
