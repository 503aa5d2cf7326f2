// Package validate holds cheap structural checks that confirm a regex match
// could really be the credential it resembles.
package validate

import (
	"encoding/base64"
	"strings"
)

const base62 = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// IsAlphabet returns true if all characters in s are in allowed set.
func IsAlphabet(s, allowed string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(allowed, rune(s[i])) {
			return false
		}
	}
	return true
}

// IsBase64URLNoPad reports whether s is valid base64url without padding.
func IsBase64URLNoPad(s string) bool {
	if s == "" {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil
}

// LooksLikeGitHubToken accepts ghp_, gho_, ghu_, ghs_ and ghr_ followed by 36
// base62 characters.
func LooksLikeGitHubToken(s string) bool {
	if len(s) != 40 {
		return false
	}
	switch s[:4] {
	case "ghp_", "gho_", "ghu_", "ghs_", "ghr_":
	default:
		return false
	}
	return IsAlphabet(s[4:], base62)
}

// LooksLikeAWSAccessKey checks for AKIA/ASIA plus 16 upper-case alphanumerics,
// ignoring case.
func LooksLikeAWSAccessKey(s string) bool {
	s = strings.ToUpper(s)
	if len(s) != 20 || !(strings.HasPrefix(s, "AKIA") || strings.HasPrefix(s, "ASIA")) {
		return false
	}
	return IsAlphabet(s[4:], base62[26:])
}

// IsJWTStructure verifies 3 segments with base64url header and payload. The
// signature is not decoded.
func IsJWTStructure(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return false
	}
	return IsBase64URLNoPad(parts[0]) && IsBase64URLNoPad(parts[1])
}
