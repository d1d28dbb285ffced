package profile

import (
	"fmt"
	"os"
	"regexp"
)

// DefaultName is used when neither the flag nor the environment
// selects a profile.
const DefaultName = "default"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name conforms to profile naming rules.
// Profile names become directory names, so the character set is tight.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// Resolve determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. QMSG_PROFILE environment variable
// 3. "default"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := os.Getenv("QMSG_PROFILE"); env != "" {
		return env
	}
	return DefaultName
}
