package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// DefaultEnv names the environment variable consulted before prompting.
const DefaultEnv = "DROPLET_KEYSTORE_PASS"

var (
	ErrEmpty    = errors.New("keystore passphrase cannot be empty")
	ErrMismatch = errors.New("keystore passphrases do not match")
)

// Source lazily resolves a keystore passphrase from an environment variable or
// by prompting the operator. The value is cached after the first successful
// retrieval so repeated calls reuse the same secret.
type Source struct {
	envVar string
	prompt io.Writer

	isTerminal   func() bool
	readPassword func() ([]byte, error)

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a passphrase source that checks envVar before
// interactively prompting on stderr.
func NewSource(envVar string) *Source {
	fd := int(os.Stdin.Fd())
	return &Source{
		envVar:       strings.TrimSpace(envVar),
		prompt:       os.Stderr,
		isTerminal:   func() bool { return term.IsTerminal(fd) },
		readPassword: func() ([]byte, error) { return term.ReadPassword(fd) },
	}
}

// Get returns the passphrase protecting an existing keystore.
func (s *Source) Get() (string, error) {
	return s.resolve(false)
}

// GetNew returns the passphrase for a keystore about to be written. An
// interactive operator must type it twice.
func (s *Source) GetNew() (string, error) {
	return s.resolve(true)
}

func (s *Source) resolve(confirm bool) (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := os.LookupEnv(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}

		if !s.isTerminal() {
			if s.envVar != "" {
				s.err = fmt.Errorf("keystore passphrase required; set %s or run interactively", s.envVar)
			} else {
				s.err = errors.New("keystore passphrase required and no terminal available")
			}
			return
		}

		first, err := s.ask("Enter keystore passphrase: ")
		if err != nil {
			s.err = err
			return
		}
		if confirm {
			second, err := s.ask("Repeat keystore passphrase: ")
			if err != nil {
				s.err = err
				return
			}
			if first != second {
				s.err = ErrMismatch
				return
			}
		}
		s.value = first
	})

	return s.value, s.err
}

func (s *Source) ask(label string) (string, error) {
	fmt.Fprint(s.prompt, label)
	raw, err := s.readPassword()
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	passphrase := string(raw)
	if strings.TrimSpace(passphrase) == "" {
		return "", ErrEmpty
	}
	return passphrase, nil
}
