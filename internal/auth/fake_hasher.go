package auth

import "strings"

const fakeHashPrefix = "$fake$"

// FakeInsecureHasher stores passwords as "$fake$<plaintext>". The reference
// server uses it in --test mode so suites register accounts without paying
// for Argon2id. Never use it outside tests.
type FakeInsecureHasher struct{}

var _ PasswordHasher = FakeInsecureHasher{}

func (FakeInsecureHasher) HashPassword(password string) (string, error) {
	return fakeHashPrefix + password, nil
}

func (FakeInsecureHasher) VerifyPassword(password, encodedHash string) bool {
	stored, ok := strings.CutPrefix(encodedHash, fakeHashPrefix)
	return ok && stored == password
}
