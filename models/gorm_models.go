// models/gorm_models.go
package models

import (
	"time"
)

// GormSession 对局记录表，一局一行
type GormSession struct {
	ID             string           `gorm:"primaryKey;size:64"`
	MapID          string           `gorm:"size:64;not null"`
	Title          string           `gorm:"size:255"`
	Status         string           `gorm:"size:16;index;not null"`
	Phase          string           `gorm:"size:16"`
	Player1ID      string           `gorm:"size:64;index"`
	Player2ID      string           `gorm:"size:64;index"`
	Player1Ready   bool             `gorm:"default:false"`
	Player2Ready   bool             `gorm:"default:false"`
	CurrentTurn    string           `gorm:"size:64"`
	CountdownStart *time.Time
	WinnerID       string           `gorm:"size:64"`
	Occupant       map[string]Stone `gorm:"serializer:json;type:jsonb"`
	BlackCount     int
	WhiteCount     int
	Player1Time    int
	Player2Time    int
	Player1Periods int
	Player2Periods int
	MoveCount      int
	ClockAnchor    *time.Time
	StartedAt      *time.Time
	Version        int64 `gorm:"not null;default:1"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (GormSession) TableName() string { return "game_sessions" }

// GormMatchRecord 对局归档
type GormMatchRecord struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"size:64;index;not null"`
	MapID     string `gorm:"size:64;not null"`
	WinnerID  string `gorm:"size:64;index"`
	LoserID   string `gorm:"size:64;index"`
	Moves     int
	Duration  int64 // 毫秒
	EndedAt   time.Time
}

func (GormMatchRecord) TableName() string { return "match_records" }

// ToGorm converts the wire record into its table row.
func (g *GameSession) ToGorm() *GormSession {
	return &GormSession{
		ID:             g.ID,
		MapID:          g.MapID,
		Title:          g.Title,
		Status:         string(g.Status),
		Phase:          string(g.Phase),
		Player1ID:      g.Player1ID,
		Player2ID:      g.Player2ID,
		Player1Ready:   g.Player1Ready,
		Player2Ready:   g.Player2Ready,
		CurrentTurn:    g.CurrentTurn,
		CountdownStart: cloneTime(g.CountdownStart),
		WinnerID:       g.WinnerID,
		Occupant:       g.Clone().Occupant,
		BlackCount:     g.BlackCount,
		WhiteCount:     g.WhiteCount,
		Player1Time:    g.Player1TimeLeft,
		Player2Time:    g.Player2TimeLeft,
		Player1Periods: g.Player1Periods,
		Player2Periods: g.Player2Periods,
		MoveCount:      g.MoveCount,
		ClockAnchor:    cloneTime(g.ClockAnchor),
		StartedAt:      cloneTime(g.StartedAt),
		Version:        g.Version,
		CreatedAt:      g.CreatedAt,
		UpdatedAt:      g.UpdatedAt,
	}
}

// FromGorm converts a table row back into the wire record.
func (r *GormSession) FromGorm() *GameSession {
	g := &GameSession{
		ID:              r.ID,
		MapID:           r.MapID,
		Title:           r.Title,
		Status:          Status(r.Status),
		Phase:           Phase(r.Phase),
		Player1ID:       r.Player1ID,
		Player2ID:       r.Player2ID,
		Player1Ready:    r.Player1Ready,
		Player2Ready:    r.Player2Ready,
		CurrentTurn:     r.CurrentTurn,
		CountdownStart:  cloneTime(r.CountdownStart),
		WinnerID:        r.WinnerID,
		Occupant:        r.Occupant,
		BlackCount:      r.BlackCount,
		WhiteCount:      r.WhiteCount,
		Player1TimeLeft: r.Player1Time,
		Player2TimeLeft: r.Player2Time,
		Player1Periods:  r.Player1Periods,
		Player2Periods:  r.Player2Periods,
		MoveCount:       r.MoveCount,
		ClockAnchor:     cloneTime(r.ClockAnchor),
		StartedAt:       cloneTime(r.StartedAt),
		Version:         r.Version,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if g.Occupant == nil {
		g.Occupant = make(map[string]Stone)
	}
	return g
}

// ToGorm converts a match record into its table row.
func (m MatchRecord) ToGorm() *GormMatchRecord {
	return &GormMatchRecord{
		SessionID: m.SessionID,
		MapID:     m.MapID,
		WinnerID:  m.WinnerID,
		LoserID:   m.LoserID,
		Moves:     m.Moves,
		Duration:  m.Duration.Milliseconds(),
		EndedAt:   m.EndedAt,
	}
}
