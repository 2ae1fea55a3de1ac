// Package gamification contains the domain model of the mentee progression
// system: the XP ledger, level calculation, daily streaks, badges, quests
// and XP-priced rewards.
//
// # Model
//
//   - Account: a user's running XP balance and derived level.
//   - Transaction: an immutable ledger row. Sum of a user's transactions
//     always equals Account.XP.
//   - Streak: consecutive-day activity counter with optional freeze window.
//   - Badge / BadgeProgress: one-shot achievements unlocked by accumulating
//     events of a requirement kind.
//   - Quest / QuestProgress: like badges, but the XP reward is claimed
//     explicitly, exactly once.
//   - Reward / RewardClaim: catalogue items bought with XP.
//
// # Atomicity
//
// All mutations of a user's state happen inside Store.WithinUser, which
// serialises units of work for the same user and commits every write of the
// callback together, or none of them. Pure state transitions live on the
// entities (Streak.RecordActivity, BadgeProgress.Advance, QuestProgress.Claim)
// so they can be tested without storage.
//
// The package depends only on the standard library, domain/shared and
// pkg/timeutil.
package gamification
