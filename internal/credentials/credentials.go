// SPDX-License-Identifier: AGPL-3.0-or-later

// Package credentials holds the account name, password and shared secret for
// one login run. Values are only reachable through accessors; every
// formatting path redacts the password and the secret.
package credentials

import (
	"fmt"
	"log/slog"
	"strings"
)

const redacted = "[secret]"

// FieldError reports a missing or unusable credential field.
type FieldError struct {
	Field string
	Msg   string
}

func (e *FieldError) Error() string { return fmt.Sprintf("credential %s: %s", e.Field, e.Msg) }

// Bundle is immutable once built.
type Bundle struct {
	user     string
	password string
	secret   string
}

// New validates and returns a Bundle. All three values are required; the
// user name must be a single token because it is passed as one argument and
// substituted into prompt texts.
func New(user, password, secret string) (Bundle, error) {
	user = strings.TrimSpace(user)
	switch {
	case user == "":
		return Bundle{}, &FieldError{Field: "user", Msg: "required"}
	case strings.ContainsAny(user, " \t\r\n"):
		return Bundle{}, &FieldError{Field: "user", Msg: "must not contain whitespace"}
	case password == "":
		return Bundle{}, &FieldError{Field: "password", Msg: "required"}
	case strings.ContainsAny(password, "\r\n"):
		return Bundle{}, &FieldError{Field: "password", Msg: "must not contain line breaks"}
	case strings.TrimSpace(secret) == "":
		return Bundle{}, &FieldError{Field: "secret", Msg: "required"}
	}
	return Bundle{user: user, password: password, secret: strings.TrimSpace(secret)}, nil
}

func (b Bundle) User() string     { return b.user }
func (b Bundle) Password() string { return b.password }
func (b Bundle) Secret() string   { return b.secret }

// SecretValues lists the values that must never leave the process.
func (b Bundle) SecretValues() []string {
	out := make([]string, 0, 2)
	for _, v := range []string{b.password, b.secret} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func (b Bundle) String() string {
	return fmt.Sprintf("credentials{user=%s password=%s secret=%s}", b.user, redacted, redacted)
}

// GoString keeps %#v from printing the raw fields.
func (b Bundle) GoString() string { return b.String() }

func (b Bundle) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user", b.user),
		slog.String("password", redacted),
		slog.String("secret", redacted),
	)
}
