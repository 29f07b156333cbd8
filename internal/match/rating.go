package match

import "math"

// XPAward is the experience granted to each side of a finished match.
type XPAward struct {
	Win  int `yaml:"win" json:"win"`
	Loss int `yaml:"loss" json:"loss"`
}

// Rules tune ratings, XP and wager payouts.
type Rules struct {
	KFactor       int              `yaml:"elo_k_factor"`
	DefaultRating int              `yaml:"default_rating"`
	RatingFloor   int              `yaml:"rating_floor"`
	WagerFeeBps   int              `yaml:"wager_fee_bps"`
	XP            map[Mode]XPAward `yaml:"xp"`
}

func DefaultRules() Rules {
	return Rules{
		KFactor:       32,
		DefaultRating: 1000,
		RatingFloor:   100,
		WagerFeeBps:   1000,
		XP: map[Mode]XPAward{
			ModeRanked: {Win: 50, Loss: 15},
			ModeCasual: {Win: 30, Loss: 10},
			ModeStory:  {Win: 40, Loss: 10},
		},
	}
}

// Elo returns the new ratings of the winner and loser. Neither drops below
// floor.
func Elo(winner, loser, k, floor int) (int, int) {
	expectedWin := 1 / (1 + math.Pow(10, float64(loser-winner)/400))
	expectedLoss := 1 - expectedWin
	w := winner + int(math.Round(float64(k)*(1-expectedWin)))
	l := loser + int(math.Round(float64(k)*(0-expectedLoss)))
	return max(w, floor), max(l, floor)
}

// Payout splits a wager pot. Each side staked wager; the winner receives
// the pot minus the fee, and the fee is simply not paid out.
func Payout(wager int64, feeBps int) (pot, fee, payout int64) {
	pot = 2 * wager
	fee = pot * int64(feeBps) / 10000
	return pot, fee, pot - fee
}
