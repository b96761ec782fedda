package auth

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ParseCredentials splits "username:password". The password may itself
// contain colons.
func ParseCredentials(s string) (username, password string, err error) {
	username, password, ok := strings.Cut(s, ":")
	if !ok || username == "" || password == "" {
		return "", "", fmt.Errorf("%w: expected username:password", ErrInvalidCredentials)
	}
	return username, password, nil
}

// PasswordReader reads a secret without echoing it
type PasswordReader func() ([]byte, error)

// TerminalPassword reads the password from the controlling terminal with
// echo turned off. When stdin is not a terminal it reads a plain line.
func TerminalPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		return term.ReadPassword(fd)
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// Prompt asks for a username on in and a password through readPassword
func Prompt(in io.Reader, out io.Writer, readPassword PasswordReader) (username, password string, err error) {
	fmt.Fprint(out, "Enter your user name:")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", "", fmt.Errorf("failed to read user name: %w", err)
	}
	username = strings.TrimSpace(line)

	fmt.Fprint(out, "Enter your password:")
	secret, err := readPassword()
	fmt.Fprintln(out)
	if err != nil {
		return "", "", fmt.Errorf("failed to read password: %w", err)
	}
	password = strings.TrimRight(string(secret), "\r\n")

	if username == "" || password == "" {
		return "", "", fmt.Errorf("%w: user name and password are required", ErrInvalidCredentials)
	}
	return username, password, nil
}
