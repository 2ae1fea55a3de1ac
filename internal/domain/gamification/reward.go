package gamification

import (
	"time"

	"github.com/mentorhub/mentorhub-backend/internal/domain/shared"
)

// Reward is an item bought with XP (a free session, a profile frame...).
type Reward struct {
	ID         string
	Name       string
	RewardType string
	XPCost     int
	Active     bool
}

// RewardClaim records that a user redeemed a reward. Each reward can be
// redeemed once per user.
type RewardClaim struct {
	UserID    shared.UserID
	RewardID  string
	XPSpent   int
	ClaimedAt time.Time
}

// FreezeCostPerDay is the XP price of one day of streak freeze.
const FreezeCostPerDay = 50
