package users

import (
	"encoding/json"
	"fmt"
)

// PrincipalKind distinguishes end users of the consumer site from B2B companies
type PrincipalKind string

const (
	KindUser    PrincipalKind = "user"
	KindCompany PrincipalKind = "company"
)

// Principal is the authenticated identity returned by a backend. Apart from the ID,
// which keys per-user local caches, it is treated as opaque.
type Principal interface {
	PrincipalID() string
	Kind() PrincipalKind
}

// User is a consumer site account
type User struct {
	ID                  string `json:"user_id"`
	Email               string `json:"email"`
	Nickname            string `json:"nickname"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
}

var _ Principal = (*User)(nil)

func (u *User) PrincipalID() string { return u.ID }
func (u *User) Kind() PrincipalKind { return KindUser }

// UnmarshalJSON accepts both "user_id" and "id", as string or number.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var aux struct {
		plain
		UserID json.RawMessage `json:"user_id"`
		AltID  json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	id, err := rawID(aux.UserID)
	if err != nil {
		return err
	}
	if id == "" {
		if id, err = rawID(aux.AltID); err != nil {
			return err
		}
	}
	u.ID = id
	return nil
}

// Company is a B2B console account
type Company struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Plan          string `json:"plan"`
	OAuthProvider string `json:"oauth_provider,omitempty"` // google, github for social logins
	CreatedAt     string `json:"created_at,omitempty"`
}

var _ Principal = (*Company)(nil)

func (c *Company) PrincipalID() string { return c.ID }
func (c *Company) Kind() PrincipalKind { return KindCompany }

// Decode builds the concrete principal for kind from its JSON form
func Decode(kind PrincipalKind, data []byte) (Principal, error) {
	var p Principal
	switch kind {
	case KindUser:
		p = &User{}
	case KindCompany:
		p = &Company{}
	default:
		return nil, fmt.Errorf("unknown principal kind %q", kind)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return p, nil
}

// Merge overlays the fields in patch onto p and returns a new principal of the same
// kind. The identifier cannot be changed through a patch.
func Merge(p Principal, patch map[string]any) (Principal, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for k, v := range patch {
		switch k {
		case "id", "user_id":
			if fmt.Sprint(v) != p.PrincipalID() {
				return nil, fmt.Errorf("principal id is immutable")
			}
			continue
		}
		fields[k] = v
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return Decode(p.Kind(), merged)
}

func rawID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("principal id: %w", err)
	}
	return n.String(), nil
}
