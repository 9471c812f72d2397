// Package clock derives byo-yomi time control and the ready countdown from the
// timestamps stored on the shared session record.
package clock

import (
	"time"

	"github.com/wfunc/gonu/models"
)

// Settings 计时规则
type Settings struct {
	PeriodSeconds int           `mapstructure:"period_seconds"`
	Periods       int           `mapstructure:"periods"`
	Countdown     time.Duration `mapstructure:"countdown"`
}

// DefaultSettings returns 30 seconds × 3 periods with a 3 second countdown.
func DefaultSettings() Settings {
	return Settings{PeriodSeconds: 30, Periods: 3, Countdown: 3 * time.Second}
}

// Outcome reports what Advance did to the record.
type Outcome int

const (
	Unchanged Outcome = iota
	Ticked
	Expired
)

func (o Outcome) String() string {
	switch o {
	case Ticked:
		return "ticked"
	case Expired:
		return "expired"
	}
	return "unchanged"
}

// Controller applies byo-yomi to the player whose turn it is.
type Controller struct {
	settings Settings
}

func NewController(s Settings) *Controller {
	if s.PeriodSeconds <= 0 {
		s.PeriodSeconds = DefaultSettings().PeriodSeconds
	}
	if s.Periods <= 0 {
		s.Periods = DefaultSettings().Periods
	}
	return &Controller{settings: s}
}

func (c *Controller) Settings() Settings { return c.settings }

// Advance charges the active player for every whole second elapsed since the
// record's clock anchor and moves the anchor forward by the seconds consumed.
// It mutates sess; callers pass a copy they own.
//
// 每过一秒扣减一次：剩余时间用尽且还有读秒次数时重置为整段时间并扣减一次读秒，
// 最后一次读秒用尽则判负。
func (c *Controller) Advance(sess *models.GameSession, now time.Time) Outcome {
	if sess.Status != models.StatusPlaying || sess.CurrentTurn == "" {
		return Unchanged
	}
	if sess.ClockAnchor == nil {
		anchor := now
		sess.ClockAnchor = &anchor
		return Ticked
	}

	elapsed := int(now.Sub(*sess.ClockAnchor) / time.Second)
	if elapsed <= 0 {
		return Unchanged
	}

	left, periods := sess.Clock(sess.CurrentTurn)
	consumed := 0
	outcome := Ticked
	for consumed < elapsed {
		consumed++
		left--
		if left >= 1 {
			continue
		}
		if periods > 1 {
			left = c.settings.PeriodSeconds
			periods--
			continue
		}
		left = 0
		outcome = Expired
		break
	}

	sess.SetClock(sess.CurrentTurn, left, periods)
	anchor := sess.ClockAnchor.Add(time.Duration(consumed) * time.Second)
	sess.ClockAnchor = &anchor
	return outcome
}

// ResetForTurn gives the next mover a full period and restarts the anchor at now.
// Periods already spent stay spent.
func (c *Controller) ResetForTurn(sess *models.GameSession, next string, now time.Time) {
	_, periods := sess.Clock(next)
	sess.SetClock(next, c.settings.PeriodSeconds, periods)
	anchor := now
	sess.ClockAnchor = &anchor
}

// ResetAll restores both players' clocks to their starting values.
func (c *Controller) ResetAll(sess *models.GameSession) {
	sess.Player1TimeLeft, sess.Player1Periods = c.settings.PeriodSeconds, c.settings.Periods
	sess.Player2TimeLeft, sess.Player2Periods = c.settings.PeriodSeconds, c.settings.Periods
	sess.ClockAnchor = nil
}

// Countdown derives the synchronized start countdown from countdownStart.
type Countdown struct {
	Duration time.Duration
}

// Remaining is duration − (now − countdownStart). ok is false when no countdown runs.
func (c Countdown) Remaining(sess *models.GameSession, now time.Time) (remaining time.Duration, ok bool) {
	if sess.CountdownStart == nil {
		return 0, false
	}
	return c.Duration - now.Sub(*sess.CountdownStart), true
}

// Elapsed reports whether a running countdown has reached zero.
func (c Countdown) Elapsed(sess *models.GameSession, now time.Time) bool {
	remaining, ok := c.Remaining(sess, now)
	return ok && remaining <= 0
}

// DisplaySeconds rounds a remaining duration up to whole seconds, never below zero.
func DisplaySeconds(remaining time.Duration) int {
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Second - 1) / time.Second)
}
