package service

import "crypto/subtle"

// SecretMatches compares in constant time. An empty expected secret never matches.
func SecretMatches(expected, given string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}
