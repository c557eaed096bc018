package app

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"
)

// PassphraseEnv supplies the key passphrase without a prompt.
const PassphraseEnv = "WEBDL_PASSPHRASE"

// ReadPassphrase returns $WEBDL_PASSPHRASE, or prompts on the terminal with echo
// disabled. With confirm the passphrase is asked twice and both entries must match.
func ReadPassphrase(confirm bool) (string, error) {
	if p := os.Getenv(PassphraseEnv); p != "" {
		return p, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal for the passphrase prompt (set %s)", PassphraseEnv)
	}

	first, err := prompt(fd, "Passphrase: ")
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", errors.New("passphrase is empty")
	}
	if !confirm {
		return first, nil
	}
	second, err := prompt(fd, "Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("passphrases do not match")
	}
	return first, nil
}

func prompt(fd int, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}
