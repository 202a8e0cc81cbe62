package utils

import (
	"github.com/alexedwards/argon2id"
)

// passwordParams are the Argon2id cost settings for stored passwords
var passwordParams = &argon2id.Params{
	Memory:      64 * 1024, // 64 MB
	Iterations:  1,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// HashPassword generates an Argon2id hash in PHC format:
// $argon2id$v=19$m=65536,t=1,p=4$salt$hash
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, passwordParams)
}

// VerifyPassword checks if password matches hash. A malformed hash is an error.
func VerifyPassword(password, encodedHash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(password, encodedHash)
}
