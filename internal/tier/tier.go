// Package tier defines the ordered permission levels used for every
// authorization and command gate.
package tier

// Tier is a permission level. The zero value is Unknown, which ranks below
// every named tier.
type Tier int

const (
	Unknown Tier = iota
	Blocked
	Normal
	Trusted
	Admin
)

// Parse maps the stored string form to a Tier. It is case-sensitive;
// anything unrecognized yields Unknown.
func Parse(s string) Tier {
	switch s {
	case "blocked":
		return Blocked
	case "normal":
		return Normal
	case "trusted":
		return Trusted
	case "admin":
		return Admin
	}
	return Unknown
}

func (t Tier) String() string {
	switch t {
	case Blocked:
		return "blocked"
	case Normal:
		return "normal"
	case Trusted:
		return "trusted"
	case Admin:
		return "admin"
	}
	return "unknown"
}

// AtLeast reports whether t satisfies a minimum required tier.
// Blocked and Unknown never satisfy any gate.
func (t Tier) AtLeast(min Tier) bool {
	if t <= Blocked {
		return false
	}
	return t >= min
}

// Valid reports whether t is one of the named tiers.
func (t Tier) Valid() bool {
	return t >= Blocked && t <= Admin
}

// Runnable returns the tier to use when selecting a container profile.
// Anything below Normal runs with the Normal profile.
func (t Tier) Runnable() Tier {
	if t < Normal {
		return Normal
	}
	return t
}

// Description is a short human-readable summary of what the tier may do.
func (t Tier) Description() string {
	switch t {
	case Admin:
		return "Admin with full privileges, can execute any code and system operations"
	case Trusted:
		return "Trusted user, can execute code and file operations (within sandbox)"
	case Normal:
		return "Normal user, limited to Q&A only, no code execution or file system access"
	}
	return "Unknown permission level"
}
