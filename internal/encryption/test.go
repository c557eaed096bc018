package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

var testMagic = []byte("WDLSEAL\x00")

// TestEncryptor frames data with a fixed marker instead of encrypting it. Output is
// deterministic and differs from the input.
type TestEncryptor struct{}

var _ Encryptor = TestEncryptor{}

func NewTestEncryptor() TestEncryptor { return TestEncryptor{} }

func (TestEncryptor) Setup(string) error { return nil }
func (TestEncryptor) IsConfigured() bool { return true }

func (TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testMagic); err != nil {
		return fmt.Errorf("writing marker: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (TestEncryptor) Unlock(string) (Key, error) { return testKey{}, nil }

type testKey struct{}

func (testKey) Decrypt(r io.Reader, w io.Writer) error {
	head := make([]byte, len(testMagic))
	if _, err := io.ReadFull(r, head); err != nil {
		return fmt.Errorf("reading marker: %w", err)
	}
	if !bytes.Equal(head, testMagic) {
		return errors.New("data was not sealed by the test encryptor")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
