package domain

import "time"

// ActiveMute is a timed user mute the bot still has to lift
type ActiveMute struct {
	GroupID   string
	UserID    string
	Until     time.Time
	CreatedAt time.Time
}

// IsDue reports whether the mute should be lifted at now
func (m *ActiveMute) IsDue(now time.Time) bool {
	return !now.Before(m.Until)
}
