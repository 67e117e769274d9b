package main

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

func hashPassword(p string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(p), 12)
	return string(b), err
}

func comparePassword(hash, p string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
}

// dummyPasswordHash is compared against when the email is unknown, so the
// request costs the same whether or not the user exists.
const dummyPasswordHash = "$2a$12$K3JNi5vQMio3r2Nvzoo/surVgRGgUrDM1u76h7PH8ZqQzSyc0Avoq"

// VerifyCredentials checks email+password against the stored hash and, on
// success, returns the user. Unknown email and wrong password are
// indistinguishable to the caller.
func (a *App) VerifyCredentials(email, password string) (*User, error) {
	user, err := a.DB.GetUserByEmail(strings.ToLower(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		bcrypt.CompareHashAndPassword([]byte(dummyPasswordHash), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if !comparePassword(user.Password, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// validatePassword enforces the registration policy: at least 8 characters
// with an upper-case letter, a lower-case letter and a digit.
func validatePassword(p string) string {
	if len(p) < 8 {
		return "password must be at least 8 characters"
	}
	var upper, lower, digit bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return "password must contain at least one uppercase letter, one lowercase letter, and one number"
	}
	return ""
}

func validateEmail(e string) string {
	at := strings.Index(e, "@")
	if at < 1 || at == len(e)-1 || !strings.Contains(e[at:], ".") {
		return "invalid email address"
	}
	return ""
}
