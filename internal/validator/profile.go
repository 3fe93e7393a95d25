package validator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/oremus-labs/ol-cvi-coach/internal/persona"
)

var (
	emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	tldLetters = regexp.MustCompile(`^[a-zA-Z]+$`)
)

// ProfileError lists the profile fields that failed validation.
type ProfileError struct {
	Fields map[string]string
}

func (e *ProfileError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "invalid profile: " + strings.Join(parts, "; ")
}

// ValidEmail reports whether email looks like local@domain.tld with a
// letters-only TLD of at least two characters.
func ValidEmail(email string) bool {
	if email == "" || !emailShape.MatchString(email) {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	domain := parts[1]
	if !strings.Contains(domain, ".") {
		return false
	}
	labels := strings.Split(domain, ".")
	tld := labels[len(labels)-1]
	if len(tld) < 2 || !tldLetters.MatchString(tld) {
		return false
	}
	for _, label := range labels {
		if label == "" {
			return false
		}
	}
	return true
}

// ValidateProfile requires every profile field and a well-formed email.
func ValidateProfile(p persona.UserProfile) error {
	fields := map[string]string{}
	required := map[string]string{
		"name":  p.Name,
		"role":  p.Role,
		"topic": p.Topic,
		"email": p.Email,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			fields[name] = "is required"
		}
	}
	if _, missing := fields["email"]; !missing && !ValidEmail(strings.TrimSpace(p.Email)) {
		fields["email"] = "must be a valid email address with a proper domain (e.g., user@example.com)"
	}
	if len(fields) > 0 {
		return &ProfileError{Fields: fields}
	}
	return nil
}

// ProfileResult reports profile validation in the Result shape used by the
// schema validator.
func ProfileResult(p persona.UserProfile) Result {
	result := Result{Valid: true, GeneratedAt: time.Now()}
	err := ValidateProfile(p)
	perr, _ := err.(*ProfileError)
	for _, name := range []string{"name", "role", "topic", "email"} {
		check := CheckResult{Name: name, Status: StatusPass}
		if perr != nil {
			if msg, ok := perr.Fields[name]; ok {
				check.Status = StatusFail
				check.Message = msg
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf("%s %s", name, msg))
			}
		}
		result.Checks = append(result.Checks, check)
	}
	return result
}
