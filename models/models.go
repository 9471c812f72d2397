// models/models.go
package models

import (
	"maps"
	"time"
)

// Status 对局状态
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Phase 对局阶段，仅在 playing 时有意义
type Phase string

const (
	PhasePlacement Phase = "placement"
	PhaseMovement  Phase = "movement"
)

// Stone is the owner of a board node.
type Stone int

const (
	Empty Stone = 0
	Black Stone = 1
	White Stone = 2
)

// Opponent returns the other colour. Empty maps to Empty.
func (s Stone) Opponent() Stone {
	switch s {
	case Black:
		return White
	case White:
		return Black
	}
	return Empty
}

func (s Stone) String() string {
	switch s {
	case Black:
		return "black"
	case White:
		return "white"
	}
	return "empty"
}

// GameSession is the shared mutable record of one match.
// Empty strings stand for null ids.
type GameSession struct {
	ID    string `json:"id"`
	MapID string `json:"mapId"`
	Title string `json:"title"`

	Status Status `json:"status"`
	Phase  Phase  `json:"phase"`

	Player1ID    string `json:"player1Id"`
	Player2ID    string `json:"player2Id"`
	Player1Ready bool   `json:"player1Ready"`
	Player2Ready bool   `json:"player2Ready"`

	CurrentTurn    string     `json:"currentTurn"`
	CountdownStart *time.Time `json:"countdownStart"`
	WinnerID       string     `json:"winnerId"`

	Occupant   map[string]Stone `json:"occupant"`
	BlackCount int              `json:"blackCount"`
	WhiteCount int              `json:"whiteCount"`

	Player1TimeLeft int `json:"player1TimeLeft"`
	Player2TimeLeft int `json:"player2TimeLeft"`
	Player1Periods  int `json:"player1Periods"`
	Player2Periods  int `json:"player2Periods"`

	// MoveCount counts movement-phase moves since the match started.
	MoveCount int `json:"moveCount"`
	// ClockAnchor is the instant up to which the active player's clock has been charged.
	ClockAnchor *time.Time `json:"clockAnchor"`
	StartedAt   *time.Time `json:"startedAt"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy safe to mutate.
func (g *GameSession) Clone() *GameSession {
	if g == nil {
		return nil
	}
	c := *g
	c.Occupant = maps.Clone(g.Occupant)
	c.CountdownStart = cloneTime(g.CountdownStart)
	c.ClockAnchor = cloneTime(g.ClockAnchor)
	c.StartedAt = cloneTime(g.StartedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// IsPlayer reports whether userID occupies one of the two seats.
func (g *GameSession) IsPlayer(userID string) bool {
	return userID != "" && (userID == g.Player1ID || userID == g.Player2ID)
}

// StoneOf returns the colour played by userID. Player1 is black.
func (g *GameSession) StoneOf(userID string) Stone {
	switch {
	case userID == "":
		return Empty
	case userID == g.Player1ID:
		return Black
	case userID == g.Player2ID:
		return White
	}
	return Empty
}

// PlayerFor returns the id seated on the given colour.
func (g *GameSession) PlayerFor(s Stone) string {
	switch s {
	case Black:
		return g.Player1ID
	case White:
		return g.Player2ID
	}
	return ""
}

// OpponentOf returns the other seat's id, or "" if userID is not seated.
func (g *GameSession) OpponentOf(userID string) string {
	switch {
	case userID == "":
		return ""
	case userID == g.Player1ID:
		return g.Player2ID
	case userID == g.Player2ID:
		return g.Player1ID
	}
	return ""
}

// Ready reports the ready flag of userID.
func (g *GameSession) Ready(userID string) bool {
	switch g.StoneOf(userID) {
	case Black:
		return g.Player1Ready
	case White:
		return g.Player2Ready
	}
	return false
}

// SetReady sets the ready flag of userID.
func (g *GameSession) SetReady(userID string, ready bool) {
	switch g.StoneOf(userID) {
	case Black:
		g.Player1Ready = ready
	case White:
		g.Player2Ready = ready
	}
}

// Clock returns the time left and periods left of userID.
func (g *GameSession) Clock(userID string) (timeLeft, periods int) {
	switch g.StoneOf(userID) {
	case Black:
		return g.Player1TimeLeft, g.Player1Periods
	case White:
		return g.Player2TimeLeft, g.Player2Periods
	}
	return 0, 0
}

// SetClock overwrites the clock fields of userID.
func (g *GameSession) SetClock(userID string, timeLeft, periods int) {
	switch g.StoneOf(userID) {
	case Black:
		g.Player1TimeLeft, g.Player1Periods = timeLeft, periods
	case White:
		g.Player2TimeLeft, g.Player2Periods = timeLeft, periods
	}
}

// CountStones counts occupant entries equal to s.
func (g *GameSession) CountStones(s Stone) int {
	n := 0
	for _, v := range g.Occupant {
		if v == s {
			n++
		}
	}
	return n
}

// MatchRecord 对局记录，对局结束时归档
type MatchRecord struct {
	SessionID string        `json:"session_id"`
	MapID     string        `json:"map_id"`
	WinnerID  string        `json:"winner_id"`
	LoserID   string        `json:"loser_id"`
	Moves     int           `json:"moves"`
	Duration  time.Duration `json:"duration"`
	EndedAt   time.Time     `json:"ended_at"`
}

// PlayerStats 玩家统计信息
type PlayerStats struct {
	UserID     string `json:"user_id"`
	TotalGames int    `json:"total_games"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
}
