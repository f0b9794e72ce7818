package desired

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

const minPasswordLength = 16

type passwordRule struct {
	name string
	ok   func(string) bool
}

var passwordRules = []passwordRule{
	{name: "at least 16 characters", ok: func(p string) bool { return len([]rune(p)) >= minPasswordLength }},
	{name: "at least one digit", ok: containsAny(unicode.IsDigit)},
	{name: "at least one lowercase letter", ok: containsAny(unicode.IsLower)},
	{name: "at least one uppercase letter", ok: containsAny(unicode.IsUpper)},
	{name: "at least one special character", ok: containsAny(func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})},
}

func containsAny(pred func(rune) bool) func(string) bool {
	return func(s string) bool { return strings.IndexFunc(s, pred) >= 0 }
}

// ValidatePassword checks password against the strength policy. Every rule
// is evaluated and each failure is logged, so one call reports all problems.
func ValidatePassword(password string) error {
	var failed []string
	for _, rule := range passwordRules {
		if rule.ok(password) {
			continue
		}
		slog.Warn("Password rule not met.", "component", "desired", "rule", rule.name)
		failed = append(failed, rule.name)
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w (missing: %s)", ErrWeakPassword, strings.Join(failed, ", "))
}
