package credential

import (
	"fmt"

	"github.com/alexedwards/argon2id"
)

// argon2idParams follows the OWASP password storage cheat sheet minimums
// for Argon2id: 46 MiB memory, 1 iteration, 1 degree of parallelism.
var argon2idParams = &argon2id.Params{
	Memory:      46 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// hashPassword returns a PHC-formatted Argon2id hash of password, each call
// using a fresh random salt.
func hashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2idParams)
}

// verifyPassword checks password against a PHC-formatted Argon2id hash. The
// underlying library panics on malformed parameters in the stored hash; that
// is converted to a plain false/error result here so a corrupted record
// can never crash the authenticate path.
func verifyPassword(password, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid password hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(password, storedHash)
}
