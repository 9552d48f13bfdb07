package utils

import "golang.org/x/crypto/bcrypt"

// bcryptCost is the work factor for stored password hashes.
const bcryptCost = bcrypt.DefaultCost

// HashPassword hashes a plain password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether plain matches the stored bcrypt hash.
func CheckPassword(plain, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}
