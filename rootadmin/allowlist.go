package rootadmin

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// EnvKey is the variable holding the comma-separated allowlist, both in
// the process environment and in the env file.
const EnvKey = "ADMIN_EMAILS"

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var (
	// ErrInvalidEmail is returned when a candidate entry is not an email.
	ErrInvalidEmail = errors.New("rootadmin: invalid email")
	// ErrEmpty is returned when an update would leave no root admins.
	ErrEmpty = errors.New("rootadmin: allowlist cannot be empty")
)

// Allowlist is the mutable set of root-admin emails. Membership checks
// are case-insensitive; the set is safe for concurrent use.
type Allowlist struct {
	mu     sync.RWMutex
	emails map[string]struct{}
}

// New builds an allowlist from the given emails. Invalid entries are
// rejected.
func New(emails []string) (*Allowlist, error) {
	set, err := buildSet(emails)
	if err != nil {
		return nil, err
	}
	return &Allowlist{emails: set}, nil
}

// ParseEmails splits a comma-separated value into normalized, deduped
// emails, preserving first-seen order. Blank entries are skipped.
func ParseEmails(value string) []string {
	var (
		out  []string
		seen = map[string]struct{}{}
	)
	for _, part := range strings.Split(value, ",") {
		email := strings.ToLower(strings.TrimSpace(part))
		if email == "" {
			continue
		}
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out
}

// ValidateEmails checks every entry against the email pattern.
func ValidateEmails(emails []string) error {
	for _, email := range emails {
		if !emailPattern.MatchString(email) {
			return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
		}
	}
	return nil
}

func buildSet(emails []string) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(emails))
	for _, raw := range emails {
		email := strings.ToLower(strings.TrimSpace(raw))
		if email == "" {
			continue
		}
		if !emailPattern.MatchString(email) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
		}
		set[email] = struct{}{}
	}
	return set, nil
}

// Contains reports whether the email is root-allowlisted.
func (a *Allowlist) Contains(email string) bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.emails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// Emails returns the current members, sorted.
func (a *Allowlist) Emails() []string {
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.emails))
	for email := range a.emails {
		out = append(out, email)
	}
	sort.Strings(out)
	return out
}

// Len returns the member count.
func (a *Allowlist) Len() int {
	if a == nil {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.emails)
}

// Replace swaps the whole membership. An empty result is rejected so a
// bad update cannot lock everyone out.
func (a *Allowlist) Replace(emails []string) error {
	set, err := buildSet(emails)
	if err != nil {
		return err
	}
	if len(set) == 0 {
		return ErrEmpty
	}
	a.mu.Lock()
	a.emails = set
	a.mu.Unlock()
	return nil
}

// Persist writes the membership as an ADMIN_EMAILS= line in the env
// file at path, preserving every other line, and mirrors the value into
// the process environment. A missing file is created.
func (a *Allowlist) Persist(path string) error {
	value := strings.Join(a.Emails(), ",")

	var lines []string
	if raw, err := os.ReadFile(path); err == nil {
		lines = strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("rootadmin: read env file: %w", err)
	}

	replaced := false
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, EnvKey+"=") {
			lines[i] = EnvKey + "=" + value
			replaced = true
		}
	}
	if !replaced {
		lines = append(lines, EnvKey+"="+value)
	}

	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("rootadmin: write env file: %w", err)
	}

	_ = os.Setenv(EnvKey, value)
	return nil
}

// LoadFile reads the ADMIN_EMAILS line from the env file at path and
// returns its parsed emails. A missing file or line yields nil.
func LoadFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("rootadmin: read env file: %w", err)
	}
	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, EnvKey+"=") {
			return ParseEmails(strings.TrimPrefix(trimmed, EnvKey+"=")), nil
		}
	}
	return nil, nil
}
