package domain

import "fmt"

// VerdictKind is the closed set of review outcomes
type VerdictKind int

const (
	VerdictCompliant VerdictKind = iota
	VerdictNonCompliant
	VerdictSuspicious
	VerdictReviewFailed
)

func (k VerdictKind) String() string {
	switch k {
	case VerdictCompliant:
		return "compliant"
	case VerdictNonCompliant:
		return "non_compliant"
	case VerdictSuspicious:
		return "suspicious"
	case VerdictReviewFailed:
		return "review_failed"
	}
	return fmt.Sprintf("verdict(%d)", int(k))
}

// Verdict is the classification outcome for one piece of content
type Verdict struct {
	Kind   VerdictKind
	Reason string   // Human readable summary from the classifier
	Hits   []string // Matched rule labels, if the backend reports them
	Err    error    // Set only for VerdictReviewFailed
}

// Compliant builds a compliant verdict
func Compliant() Verdict {
	return Verdict{Kind: VerdictCompliant}
}

// NonCompliant builds a non-compliant verdict
func NonCompliant(reason string, hits ...string) Verdict {
	return Verdict{Kind: VerdictNonCompliant, Reason: reason, Hits: hits}
}

// Suspicious builds a suspicious verdict
func Suspicious(reason string, hits ...string) Verdict {
	return Verdict{Kind: VerdictSuspicious, Reason: reason, Hits: hits}
}

// ReviewFailed wraps a classification failure
func ReviewFailed(err error) Verdict {
	reason := "review failed"
	if err != nil {
		reason = err.Error()
	}
	return Verdict{Kind: VerdictReviewFailed, Reason: reason, Err: err}
}

// ContentType is the kind of content that was reviewed
type ContentType int

const (
	ContentText ContentType = iota
	ContentImage
)

func (c ContentType) String() string {
	switch c {
	case ContentText:
		return "text"
	case ContentImage:
		return "image"
	}
	return fmt.Sprintf("content(%d)", int(c))
}
