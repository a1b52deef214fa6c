// Package auth validates credentials carried in RTSP requests.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Validator checks Authorization headers against a fixed user table.
// Only the Basic scheme is supported; the zero-value Validator (no users)
// rejects everything.
type Validator struct {
	realm string
	users map[string]string
}

func NewValidator(realm string) *Validator {
	return &Validator{
		realm: realm,
		users: make(map[string]string),
	}
}

func (v *Validator) AddUser(username, password string) {
	v.users[username] = password
}

// Realm returns the value to advertise in a WWW-Authenticate challenge.
func (v *Validator) Realm() string {
	return v.realm
}

// Challenge returns the WWW-Authenticate header value sent with a 401.
func (v *Validator) Challenge() string {
	return fmt.Sprintf("Basic realm=\"%s\"", v.realm)
}

// Check validates the content of an Authorization header.
func (v *Validator) Check(authorization string) error {
	if authorization == "" {
		return ErrMissingCredentials
	}

	scheme, cred, ok := strings.Cut(authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Basic") {
		return ErrInvalidCredentials
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cred))
	if err != nil {
		return ErrInvalidCredentials
	}

	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return ErrInvalidCredentials
	}

	stored, ok := v.users[username]
	if !ok || stored != password {
		return ErrInvalidCredentials
	}
	return nil
}
