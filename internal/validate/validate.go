package validate

import (
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
)

const (
	base62     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	upperAlnum = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	rePlaceholderWord = regexp.MustCompile(`(?i)EXAMPLE|placeholder|YOUR_|xxx|REPLACE`)
	reAssignPrefix    = regexp.MustCompile(`^.*?[:=]\s*["']?`)
	awsKeyPrefixes    = []string{"AKIA", "AGPA", "AIDA", "AROA", "AIPA", "ANPA", "ANVA", "ASIA"}
)

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

// IsHex returns true if s is valid hex.
func IsHex(s string) bool {
	if s == "" || len(s)%2 == 1 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// IsHexDigits reports whether s is non-empty and made only of hex digits,
// regardless of length parity.
func IsHexDigits(s string) bool {
	return IsAlphabet(s, "0123456789abcdefABCDEF")
}

// DecodeBase64Lenient decodes standard base64, tolerating missing padding
// and a dangling final character.
func DecodeBase64Lenient(s string) ([]byte, bool) {
	s = strings.TrimRight(s, "=")
	if len(s)%4 == 1 {
		s = s[:len(s)-1]
	}
	if s == "" {
		return nil, false
	}
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

// LooksLikeGitHubToken performs simple validation on a GitHub token candidate.
// Accepts ghp_, gho_, ghu_, ghs_, ghr_ followed by 36 base62 chars.
func LooksLikeGitHubToken(s string) bool {
	if !(strings.HasPrefix(s, "ghp_") || strings.HasPrefix(s, "gho_") || strings.HasPrefix(s, "ghu_") || strings.HasPrefix(s, "ghs_") || strings.HasPrefix(s, "ghr_")) {
		return false
	}
	tail := s[4:]
	return len(tail) == 36 && IsAlphabet(tail, base62)
}

// LooksLikeAWSAccessKey checks for a known AWS key-id prefix + 16 uppercase alnum.
func LooksLikeAWSAccessKey(s string) bool {
	if len(s) != 20 || !hasAWSPrefix(s) {
		return false
	}
	return IsAlphabet(s[4:], upperAlnum)
}

func hasAWSPrefix(s string) bool {
	for _, p := range awsKeyPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// SecretValue strips a leading `key = "` assignment and a trailing quote so
// placeholder checks see only the value.
func SecretValue(match string) string {
	v := reAssignPrefix.ReplaceAllString(match, "")
	return strings.TrimRight(v, `"'`)
}

// IsRepetitive reports whether s is one character repeated 8+ times or a
// 1-4 character unit repeated 4+ times.
func IsRepetitive(s string) bool {
	if len(s) >= 8 && strings.Count(s, s[:1]) == len(s) {
		return true
	}
	for unit := 1; unit <= 4; unit++ {
		if len(s)%unit != 0 || len(s)/unit < 4 {
			continue
		}
		if strings.Repeat(s[:unit], len(s)/unit) == s {
			return true
		}
	}
	return false
}

// LooksLikePlaceholder reports whether a matched secret is documentation
// filler: EXAMPLE/YOUR_/xxx markers, masked values, zero-padded AWS ids or
// repeated runs.
func LooksLikePlaceholder(match string) bool {
	if rePlaceholderWord.MatchString(match) {
		return true
	}
	v := SecretValue(match)
	if v == "" {
		return false
	}
	if IsAlphabet(v, "xX") || IsAlphabet(v, "xX.*") {
		return true
	}
	if hasAWSPrefix(match) && len(match) > 4 && IsAlphabet(match[4:], "X0") {
		return true
	}
	return IsRepetitive(v)
}
