package escrow

import (
	"math"

	"github.com/escrowlabs/escrowd/internal/domain"
)

// Split is the exact decomposition of a settled pool. The three outgoing
// parts always sum to TotalPool: WinnerShare + NetFee + SetupCost.
type Split struct {
	TotalPool   uint64
	WinnerShare uint64
	GrossFee    uint64
	NetFee      uint64
}

// SettlementSplit computes the payout decomposition for a declared outcome.
// Shares are computed from the full pool; the fee recipient absorbs the
// setup cost. The gross fee is derived by subtraction so the two shares sum
// to the pool exactly, with no rounding leakage.
func SettlementSplit(stake, setupCost uint64) (Split, error) {
	totalPool, err := checkedMul(stake, 2)
	if err != nil {
		return Split{}, err
	}
	product, err := checkedMul(totalPool, domain.WinnerPct)
	if err != nil {
		return Split{}, err
	}
	winnerShare := product / 100
	grossFee := totalPool - winnerShare
	if grossFee < setupCost {
		return Split{}, domain.ErrInvalidFeeMargin
	}
	return Split{
		TotalPool:   totalPool,
		WinnerShare: winnerShare,
		GrossFee:    grossFee,
		NetFee:      grossFee - setupCost,
	}, nil
}

// RecoveryRefund computes the per-party refund when the arbiter times out.
// Each party absorbs half of the setup cost; an odd cost rounds the charge
// up so the vault never dips below its retained reserve.
func RecoveryRefund(stake, setupCost uint64) (uint64, error) {
	half := setupCost/2 + setupCost%2
	return checkedSub(stake, half)
}

// CancelRefund computes the refund for the single depositor of a cancelled
// wager. The entire setup cost is charged to the one party that funded the
// vault.
func CancelRefund(stake, setupCost uint64) (uint64, error) {
	return checkedSub(stake, setupCost)
}

func checkedMul(a, b uint64) (uint64, error) {
	if b != 0 && a > math.MaxUint64/b {
		return 0, domain.ErrAmountOverflow
	}
	return a * b, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, domain.ErrRefundUnderflow
	}
	return a - b, nil
}
