package auth

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/config"
)

// dummyHash is verified against when the operator name is unknown so that
// failed logins take the same time either way.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

type operatorEntry struct {
	Operator
	hash string
}

// Directory holds the operators allowed to log in. It is built once from
// configuration and is read-only afterwards.
type Directory struct {
	byName map[string]operatorEntry
}

// NewDirectory builds a Directory. Names are matched case-insensitively.
func NewDirectory(operators []config.OperatorConfig) (*Directory, error) {
	d := &Directory{byName: make(map[string]operatorEntry, len(operators))}
	for i, op := range operators {
		name := strings.TrimSpace(op.Name)
		if name == "" {
			return nil, fmt.Errorf("operator %d: name is required", i)
		}
		role, ok := ParseRole(op.Role)
		if !ok {
			return nil, fmt.Errorf("operator %q: unknown role %q", name, op.Role)
		}
		if _, err := parsePHC(op.PasswordHash); err != nil {
			return nil, fmt.Errorf("operator %q: %w", name, err)
		}
		key := strings.ToLower(name)
		if _, dup := d.byName[key]; dup {
			return nil, fmt.Errorf("operator %q: defined twice", name)
		}
		d.byName[key] = operatorEntry{Operator: Operator{Name: name, Role: role}, hash: op.PasswordHash}
	}
	return d, nil
}

// Len returns the number of configured operators.
func (d *Directory) Len() int {
	return len(d.byName)
}

// Authenticate checks a name and password. Any mismatch returns
// ErrInvalidCredentials without saying which part was wrong.
func (d *Directory) Authenticate(name, password string) (Operator, error) {
	entry, ok := d.byName[strings.ToLower(strings.TrimSpace(name))]
	hash := entry.hash
	if !ok {
		hash = dummyHash
	}

	match, err := VerifyPassword(password, hash)
	if err != nil || !match || !ok {
		return Operator{}, ErrInvalidCredentials
	}
	return entry.Operator, nil
}
