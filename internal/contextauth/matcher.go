package contextauth

import (
	"socialecho/internal/domain"
)

// Outcome is the closed classification set for a sign-in attempt's context.
type Outcome int

const (
	// OutcomeNoContextData means the user has no stored contexts at all;
	// this is the first login and is never suspicious.
	OutcomeNoContextData Outcome = iota
	// OutcomeTrusted means the exact context is stored and marked trusted.
	OutcomeTrusted
	// OutcomeMatch means the exact context is stored but not currently
	// trusted. It already passed verification once, so it may proceed.
	OutcomeMatch
	// OutcomeMismatch means the user has stored contexts and none matches.
	OutcomeMismatch
	// OutcomeBlocked means a blocked context matches this request's IP or
	// user-agent tuple. Block takes precedence over every other state.
	OutcomeBlocked
	// OutcomeSuspicious is derived by the sign-in engine from repeated
	// unverified mismatches; Classify never returns it.
	OutcomeSuspicious
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoContextData:
		return "NO_CONTEXT_DATA"
	case OutcomeTrusted:
		return "TRUSTED"
	case OutcomeMatch:
		return "MATCH"
	case OutcomeMismatch:
		return "MISMATCH"
	case OutcomeBlocked:
		return "BLOCKED"
	case OutcomeSuspicious:
		return "SUSPICIOUS"
	}
	return "UNKNOWN"
}

// Classification is the matcher's verdict. MismatchedFields and Current are
// populated only for OutcomeMismatch.
type Classification struct {
	Outcome          Outcome
	MismatchedFields []string
	Current          Descriptor
}

// Classify compares a fresh descriptor against the user's stored contexts.
// The records slice must be ordered most recent first, which is how the
// repository returns it.
func Classify(records []*domain.UserContext, fresh Descriptor) Classification {
	for _, r := range records {
		if r.IsBlocked && (r.IP == fresh.IP || sameAgentTuple(r, fresh)) {
			return Classification{Outcome: OutcomeBlocked}
		}
	}

	for _, r := range records {
		if r.IsBlocked {
			continue
		}
		if r.IP == fresh.IP && sameAgentTuple(r, fresh) {
			if r.IsTrusted {
				return Classification{Outcome: OutcomeTrusted}
			}
			return Classification{Outcome: OutcomeMatch}
		}
	}

	if len(records) == 0 {
		return Classification{Outcome: OutcomeNoContextData}
	}

	ref := referenceContext(records)
	return Classification{
		Outcome:          OutcomeMismatch,
		MismatchedFields: diffFields(ref, fresh),
		Current:          fresh,
	}
}

// sameAgentTuple reports whether the stored record matches the descriptor on
// the full user-agent tuple (browser, os, platform).
func sameAgentTuple(r *domain.UserContext, d Descriptor) bool {
	return r.Browser == d.Browser && r.OS == d.OS && r.Platform == d.Platform
}

// referenceContext picks the record the mismatch is reported against: the most
// recent trusted context, falling back to the most recent one.
func referenceContext(records []*domain.UserContext) *domain.UserContext {
	for _, r := range records {
		if r.IsTrusted && !r.IsBlocked {
			return r
		}
	}
	return records[0]
}

// diffFields lists the attribute names that differ between the stored context
// and the fresh descriptor. Unknown equals Unknown; absence is a value here,
// not a mismatch.
func diffFields(r *domain.UserContext, d Descriptor) []string {
	var fields []string
	for _, c := range []struct {
		name   string
		stored string
		fresh  string
	}{
		{"ip", r.IP, d.IP},
		{"country", r.Country, d.Country},
		{"city", r.City, d.City},
		{"device", r.Device, d.Device},
		{"deviceType", r.DeviceType, d.DeviceType},
		{"os", r.OS, d.OS},
		{"platform", r.Platform, d.Platform},
		{"browser", r.Browser, d.Browser},
	} {
		if normalize(c.stored) != normalize(c.fresh) {
			fields = append(fields, c.name)
		}
	}
	return fields
}

func normalize(v string) string {
	if v == "" {
		return Unknown
	}
	return v
}
