package bet

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/phenomenon0/betchain/pkg/eth"
)

// PayoutPolicy decides how the losing pool of a decided event is shared
// among the winning bets.
type PayoutPolicy int

const (
	// StakeWeighted pays each winner a share proportional to its stake.
	StakeWeighted PayoutPolicy = iota
	// EqualSplit pays every winner the same share regardless of stake.
	EqualSplit
)

func (p PayoutPolicy) String() string {
	switch p {
	case StakeWeighted:
		return "stake_weighted"
	case EqualSplit:
		return "equal_split"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePayoutPolicy accepts "stake_weighted" or "equal_split".
func ParsePayoutPolicy(s string) (PayoutPolicy, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "stake_weighted", "":
		return StakeWeighted, nil
	case "equal_split":
		return EqualSplit, nil
	default:
		return 0, fmt.Errorf("unknown payout policy %q", s)
	}
}

// Config holds the engine's wager rules.
type Config struct {
	// MinimumBet is the smallest stake accepted, in wei.
	MinimumBet *big.Int
	Payout     PayoutPolicy
}

// DefaultConfig returns a 0.1 ether minimum with stake-weighted payouts.
func DefaultConfig() Config {
	return Config{
		MinimumBet: eth.MustParseEther("0.1"),
		Payout:     StakeWeighted,
	}
}
