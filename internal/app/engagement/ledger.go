// Package engagement implements the XP ledger and the badge evaluator.
//
// Level is a pure function of cumulative XP:
//
//	level = floor(xp / 100) + 1
//
// XP only ever moves upward, so once a badge threshold is crossed it stays
// crossed and re-running the evaluator never awards anything twice.
package engagement

import (
	"github.com/guildboard/guildboard/internal/domain"
)

// ─── Constants ──────────────────────────────────────────────────────────────

// XPPerLevel is the width of one level band.
const XPPerLevel = 100

// ─── Ledger Operations ──────────────────────────────────────────────────────

// CreditResult describes a ledger after one credit.
type CreditResult struct {
	XP        int  `json:"xp"`
	Level     int  `json:"level"`
	PrevLevel int  `json:"prev_level"`
	LeveledUp bool `json:"leveled_up"`
}

// LevelFor returns the level derived from xp.
func LevelFor(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

// Credit adds amount to the account's XP and recomputes its level.
// Non-positive amounts are rejected and leave the account untouched.
func Credit(a *domain.Account, amount int) (CreditResult, error) {
	if amount <= 0 {
		return CreditResult{XP: a.XP, Level: a.Level, PrevLevel: a.Level}, domain.Validation(domain.ErrInvalidAmount)
	}
	prev := LevelFor(a.XP)
	a.XP += amount
	a.Level = LevelFor(a.XP)
	return CreditResult{
		XP:        a.XP,
		Level:     a.Level,
		PrevLevel: prev,
		LeveledUp: a.Level != prev,
	}, nil
}

// IncrementTasksCompleted bumps the completed-task counter by one and returns
// the new value.
func IncrementTasksCompleted(a *domain.Account) int {
	a.TasksCompleted++
	return a.TasksCompleted
}

// XPToNextLevel is how much XP is still needed to reach the next level.
func XPToNextLevel(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return XPPerLevel - xp%XPPerLevel
}

// ProgressPct is the percentage through the current level band.
func ProgressPct(xp int) int {
	if xp < 0 {
		return 0
	}
	return (xp % XPPerLevel) * 100 / XPPerLevel
}

// Progress is the read model served with a ledger.
type Progress struct {
	Level         int `json:"level"`
	XP            int `json:"xp"`
	XPToNextLevel int `json:"xp_to_next_level"`
	ProgressPct   int `json:"progress_pct"`
}

// ProgressOf summarizes the account's position in its level band.
func ProgressOf(a *domain.Account) Progress {
	return Progress{
		Level:         LevelFor(a.XP),
		XP:            a.XP,
		XPToNextLevel: XPToNextLevel(a.XP),
		ProgressPct:   ProgressPct(a.XP),
	}
}
