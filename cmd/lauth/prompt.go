package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/starford/lightauth/internal/apperr"
)

// terminalPrompt reads a password from the controlling terminal without
// echo. Without a terminal the password must come from --password.
func terminalPrompt(w io.Writer) func(string) (string, error) {
	return func(label string) (string, error) {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return "", apperr.ErrPasswordRequired
		}
		fmt.Fprint(w, label)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
}
