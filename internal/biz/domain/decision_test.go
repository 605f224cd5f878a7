package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecision_Has(t *testing.T) {
	assert := assert.New(t)

	d := Decision{
		Action:      ActionRecallAndNotify,
		Punishments: []Punishment{MuteUser(time.Hour), MuteGroup()},
	}

	assert.True(d.Has(PunishMuteUser))
	assert.True(d.Has(PunishMuteGroup))
	assert.False(d.Has(PunishKickUser))

	p, ok := d.Punishment(PunishMuteUser)
	assert.True(ok)
	assert.Equal(time.Hour, p.Duration)
	assert.Equal("recall_and_notify [mute_user(1h0m0s),mute_group]", d.String())
}

func TestAction_Predicates(t *testing.T) {
	assert := assert.New(t)

	assert.True(ActionRecallAndNotify.Recalls())
	assert.True(ActionRecall.Recalls())
	assert.False(ActionNotifyOnly.Recalls())
	assert.True(ActionNotifyOnly.NotifiesGroup())
	assert.False(ActionNotifyOwner.NotifiesGroup())
	assert.False(ActionNone.NotifiesGroup())
}

func TestVerdictConstructors(t *testing.T) {
	assert := assert.New(t)

	v := NonCompliant("abuse", "insult", "spam")
	assert.Equal(VerdictNonCompliant, v.Kind)
	assert.Equal([]string{"insult", "spam"}, v.Hits)

	failure := errors.New("timeout")
	v = ReviewFailed(failure)
	assert.Equal(VerdictReviewFailed, v.Kind)
	assert.ErrorIs(v.Err, failure)
	assert.Equal("timeout", v.Reason)
	assert.Equal("review_failed", v.Kind.String())
}

func TestDispatchResult(t *testing.T) {
	assert := assert.New(t)

	var r DispatchResult
	r.Add(StepRecall, nil)
	r.Add(StepMuteUser, errors.New("permission denied"))
	r.Skip(StepNotifyGroup, "no notify group")

	failed := r.Failed()
	assert.Len(failed, 1)
	assert.Equal(StepMuteUser, failed[0].Step)

	o, ok := r.Outcome(StepRecall)
	assert.True(ok)
	assert.True(o.OK())

	o, ok = r.Outcome(StepNotifyGroup)
	assert.True(ok)
	assert.False(o.OK())
	assert.Equal("notify_group: skipped: no notify group", o.String())
}
