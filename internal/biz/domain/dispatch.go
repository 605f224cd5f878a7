package domain

import "fmt"

// Step names one side effect executed by the dispatcher
type Step string

const (
	StepRecall          Step = "recall"
	StepMuteUser        Step = "mute_user"
	StepKickUser        Step = "kick_user"
	StepMuteGroup       Step = "mute_group"
	StepNotifyGroup     Step = "notify_group"
	StepNotifyMute      Step = "notify_mute"
	StepNotifyKick      Step = "notify_kick"
	StepNotifyGroupMute Step = "notify_group_mute"
	StepNotifyOwner     Step = "notify_owner"
)

// Outcome is the result of a single step
type Outcome struct {
	Step    Step
	Err     error
	Skipped string // Reason the step was not attempted
}

// OK reports whether the step ran and succeeded
func (o Outcome) OK() bool {
	return o.Err == nil && o.Skipped == ""
}

func (o Outcome) String() string {
	switch {
	case o.Err != nil:
		return fmt.Sprintf("%s: failed: %v", o.Step, o.Err)
	case o.Skipped != "":
		return fmt.Sprintf("%s: skipped: %s", o.Step, o.Skipped)
	}
	return fmt.Sprintf("%s: ok", o.Step)
}

// DispatchResult collects the outcome of every attempted step
type DispatchResult struct {
	Outcomes []Outcome
}

// Add appends an outcome
func (r *DispatchResult) Add(step Step, err error) {
	r.Outcomes = append(r.Outcomes, Outcome{Step: step, Err: err})
}

// Skip records a step that was deliberately not attempted
func (r *DispatchResult) Skip(step Step, reason string) {
	r.Outcomes = append(r.Outcomes, Outcome{Step: step, Skipped: reason})
}

// Failed returns the failed outcomes
func (r DispatchResult) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Outcome returns the outcome of a step, if it was recorded
func (r DispatchResult) Outcome(step Step) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Step == step {
			return o, true
		}
	}
	return Outcome{}, false
}
