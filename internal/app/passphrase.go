package app

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// PassphraseFunc supplies the passphrase protecting the main key.
type PassphraseFunc func() (string, error)

// PromptPassphrase reads the passphrase from CV_PASSPHRASE, or asks for it on the terminal.
func PromptPassphrase(prompt string) PassphraseFunc {
	return func() (string, error) {
		if p := os.Getenv("CV_PASSPHRASE"); p != "" {
			return p, nil
		}
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal to read the passphrase from; set CV_PASSPHRASE")
		}
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(b), nil
	}
}

// StaticPassphrase always returns p.
func StaticPassphrase(p string) PassphraseFunc {
	return func() (string, error) { return p, nil }
}
