package model

import "fmt"

type VerdictKind string

const (
	Matched       VerdictKind = "MATCHED"
	Violated      VerdictKind = "VIOLATED"
	NotApplicable VerdictKind = "N/A"
)

// Verdict classifies one probe outcome against its expectation. Expected and
// Actual are only meaningful for Violated.
type Verdict struct {
	Kind     VerdictKind
	Expected bool
	Actual   bool
}

func MatchedVerdict() Verdict {
	return Verdict{Kind: Matched}
}

func ViolatedVerdict(expected, actual bool) Verdict {
	return Verdict{Kind: Violated, Expected: expected, Actual: actual}
}

func NotApplicableVerdict() Verdict {
	return Verdict{Kind: NotApplicable}
}

// Classify turns a connect outcome into a verdict. A refused connection and a
// timeout are the same outcome: the port did not accept.
func Classify(accepted, expected bool) Verdict {
	if accepted == expected {
		return MatchedVerdict()
	}
	return ViolatedVerdict(expected, accepted)
}

func (v Verdict) IsViolation() bool {
	return v.Kind == Violated
}

func (v Verdict) String() string {
	switch v.Kind {
	case Violated:
		return fmt.Sprintf("%s(expected=%s, actual=%s)", v.Kind, openState(v.Expected), openState(v.Actual))
	case "":
		return string(NotApplicable)
	default:
		return string(v.Kind)
	}
}

func openState(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}
