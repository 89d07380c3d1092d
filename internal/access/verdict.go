// Package access implements the authorization evaluator for share links.
//
// The evaluator answers one question: may this requester see the content
// behind this token right now? The answer is a Verdict, never an error;
// errors are reserved for infrastructure failures, which must surface as
// such instead of masquerading as denials.
package access

// Reason explains a verdict to the client without leaking stored state.
type Reason string

const (
	// ReasonNoLink means no link exists for the token.
	ReasonNoLink Reason = "no_link"

	// ReasonExpired means the link exists but its expiry has passed.
	ReasonExpired Reason = "expired"

	// ReasonNoUser means a paid link was checked by a guest.
	ReasonNoUser Reason = "no_user"

	// ReasonNotInList means the user is neither allow-listed nor holding
	// a valid group key.
	ReasonNotInList Reason = "not_in_list"

	// ReasonGroupKeyRequired means the link demands a group key and the
	// requester presented none or a wrong one. One reason covers both so
	// a probing client cannot distinguish them.
	ReasonGroupKeyRequired Reason = "group_key_required_or_invalid"
)

// Verdict is the outcome of one access check.
type Verdict struct {
	// Allowed reports whether access is granted.
	Allowed bool `json:"allowed"`

	// Mode is the link mode ("free" or "paid") when allowed.
	Mode string `json:"mode,omitempty"`

	// Reason explains a denial. Empty when allowed.
	Reason Reason `json:"reason,omitempty"`
}

// Allow constructs an allowing verdict for the given link mode.
func Allow(mode string) Verdict {
	return Verdict{Allowed: true, Mode: mode}
}

// Deny constructs a denying verdict with the given reason.
func Deny(reason Reason) Verdict {
	return Verdict{Allowed: false, Reason: reason}
}
