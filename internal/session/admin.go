package session

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Admin is the identity snapshot the backend returns for a token.
type Admin struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

// UnmarshalJSON accepts a numeric id and never fails on lastLogin, which is
// for display only: an unreadable value is dropped.
func (a *Admin) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        json.RawMessage `json:"id"`
		Name      string          `json:"name"`
		Email     string          `json:"email"`
		Role      Role            `json:"role"`
		LastLogin json.RawMessage `json:"lastLogin"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := parseID(raw.ID)
	if err != nil {
		return err
	}

	*a = Admin{
		ID:        id,
		Name:      raw.Name,
		Email:     raw.Email,
		Role:      raw.Role,
		LastLogin: parseTimestamp(raw.LastLogin),
	}
	return nil
}

func parseID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return "", errors.New("admin id must be a string or a number")
	}
	if _, err := strconv.ParseInt(asNumber.String(), 10, 64); err != nil {
		return "", errors.New("admin id must be an integer: " + asNumber.String())
	}
	return asNumber.String(), nil
}

// parseTimestamp accepts an RFC3339 string or unix milliseconds. Anything
// else yields nil.
func parseTimestamp(raw json.RawMessage) *time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		t, err := time.Parse(time.RFC3339, asString)
		if err != nil {
			log.Debugf("unparsable timestamp [%s]: %s", asString, err)
			return nil
		}
		return &t
	}

	var asMillis int64
	if err := json.Unmarshal(raw, &asMillis); err == nil && asMillis > 0 {
		t := time.UnixMilli(asMillis).UTC()
		return &t
	}

	return nil
}

func (a *Admin) validate() error {
	if a == nil {
		return errors.New("admin missing")
	}
	if a.ID == "" {
		return errors.New("admin id missing")
	}
	if !a.Role.Valid() {
		return errors.New("admin role invalid: " + string(a.Role))
	}
	return nil
}

func (a *Admin) clone() *Admin {
	if a == nil {
		return nil
	}
	c := *a
	if a.LastLogin != nil {
		lastLogin := *a.LastLogin
		c.LastLogin = &lastLogin
	}
	return &c
}
