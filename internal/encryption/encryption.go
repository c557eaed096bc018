// Package encryption seals the session cookie file. Sealing only needs the public key;
// opening a sealed file needs the passphrase that protects the private key.
package encryption

import "io"

// Encryptor seals data for the configured key pair.
type Encryptor interface {
	// Setup generates the key pair once, protecting the private key with passphrase.
	Setup(passphrase string) error
	// Encrypt seals r into w with the public key.
	Encrypt(r io.Reader, w io.Writer) error
	// Unlock opens the private key. A wrong passphrase is an error.
	Unlock(passphrase string) (Key, error)
	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// Key is an unlocked private key. It lives in memory only.
type Key interface {
	Decrypt(r io.Reader, w io.Writer) error
}
