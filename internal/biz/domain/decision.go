package domain

import (
	"fmt"
	"strings"
	"time"
)

// Action is the message-level reaction to a verdict
type Action int

const (
	ActionNone Action = iota
	ActionRecall
	ActionRecallAndNotify
	ActionNotifyOnly
	ActionNotifyOwner
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionRecall:
		return "recall"
	case ActionRecallAndNotify:
		return "recall_and_notify"
	case ActionNotifyOnly:
		return "notify_only"
	case ActionNotifyOwner:
		return "notify_owner"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Recalls reports whether the action removes the offending message
func (a Action) Recalls() bool {
	return a == ActionRecall || a == ActionRecallAndNotify
}

// NotifiesGroup reports whether the action posts to the notify group
func (a Action) NotifiesGroup() bool {
	return a == ActionRecallAndNotify || a == ActionNotifyOnly
}

// PunishmentKind tags a Punishment
type PunishmentKind int

const (
	PunishMuteUser PunishmentKind = iota
	PunishKickUser
	PunishMuteGroup
)

func (k PunishmentKind) String() string {
	switch k {
	case PunishMuteUser:
		return "mute_user"
	case PunishKickUser:
		return "kick_user"
	case PunishMuteGroup:
		return "mute_group"
	}
	return fmt.Sprintf("punishment(%d)", int(k))
}

// Punishment is one enforcement step; Duration is set for MuteUser, Block for KickUser
type Punishment struct {
	Kind     PunishmentKind
	Duration time.Duration
	Block    bool
}

// MuteUser builds a user mute punishment
func MuteUser(d time.Duration) Punishment {
	return Punishment{Kind: PunishMuteUser, Duration: d}
}

// KickUser builds a kick punishment
func KickUser(block bool) Punishment {
	return Punishment{Kind: PunishKickUser, Block: block}
}

// MuteGroup builds a whole-group mute punishment
func MuteGroup() Punishment {
	return Punishment{Kind: PunishMuteGroup}
}

func (p Punishment) String() string {
	switch p.Kind {
	case PunishMuteUser:
		return fmt.Sprintf("mute_user(%s)", p.Duration)
	case PunishKickUser:
		return fmt.Sprintf("kick_user(block=%t)", p.Block)
	}
	return p.Kind.String()
}

// Decision is the engine output for one verdict
type Decision struct {
	Action      Action
	Punishments []Punishment

	Verdict     Verdict
	ContentType ContentType
	Policy      Policy // Policy the decision was made under
	PolicyErr   error  // Non-nil when the group policy could not be resolved
	UserCount   int    // User violations in window, including this one
	GroupCount  int    // Group violations in window, including this one
}

// Has reports whether a punishment of the given kind was decided
func (d Decision) Has(kind PunishmentKind) bool {
	_, ok := d.Punishment(kind)
	return ok
}

// Punishment returns the punishment of the given kind, if any
func (d Decision) Punishment(kind PunishmentKind) (Punishment, bool) {
	for _, p := range d.Punishments {
		if p.Kind == kind {
			return p, true
		}
	}
	return Punishment{}, false
}

func (d Decision) String() string {
	parts := make([]string, 0, len(d.Punishments))
	for _, p := range d.Punishments {
		parts = append(parts, p.String())
	}
	return fmt.Sprintf("%s [%s]", d.Action, strings.Join(parts, ","))
}
