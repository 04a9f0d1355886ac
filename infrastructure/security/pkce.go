package security

import "golang.org/x/oauth2"

// GenerateVerifier returns a fresh PKCE code verifier: 43 characters of the
// unreserved URL alphabet backed by 32 random bytes.
func GenerateVerifier() string {
	return oauth2.GenerateVerifier()
}

// ChallengeFor is the S256 challenge of verifier, unpadded base64url.
func ChallengeFor(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
