package escrow

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowlabs/escrowd/internal/domain"
)

func TestSettlementSplit(t *testing.T) {
	// stake 100, setup cost 2: pool 200, winner 190, gross fee 10, net 8.
	split, err := SettlementSplit(100, 2)
	require.NoError(t, err)

	assert.Equal(t, uint64(200), split.TotalPool)
	assert.Equal(t, uint64(190), split.WinnerShare)
	assert.Equal(t, uint64(10), split.GrossFee)
	assert.Equal(t, uint64(8), split.NetFee)

	// The outgoing parts plus the retained setup cost cover the pool exactly.
	assert.Equal(t, split.TotalPool, split.WinnerShare+split.NetFee+2)
}

func TestSettlementSplitRoundsWinnerShareDown(t *testing.T) {
	// stake 33: pool 66, 95% of 66 is 62.7, floored to 62; gross fee 4.
	split, err := SettlementSplit(33, 1)
	require.NoError(t, err)

	assert.Equal(t, uint64(66), split.TotalPool)
	assert.Equal(t, uint64(62), split.WinnerShare)
	assert.Equal(t, uint64(4), split.GrossFee)
	assert.Equal(t, uint64(3), split.NetFee)
}

func TestSettlementSplitFeeMargin(t *testing.T) {
	// stake 100 leaves a gross fee of 10; a setup cost above that fails.
	_, err := SettlementSplit(100, 11)
	assert.ErrorIs(t, err, domain.ErrInvalidFeeMargin)

	// Equality is fine: the whole fee goes to the reserve, net fee zero.
	split, err := SettlementSplit(100, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), split.NetFee)
}

func TestSettlementSplitOverflow(t *testing.T) {
	_, err := SettlementSplit(math.MaxUint64, 0)
	assert.ErrorIs(t, err, domain.ErrAmountOverflow)

	// Doubling fits but multiplying the pool by the percentage does not.
	_, err = SettlementSplit(math.MaxUint64/2, 0)
	assert.ErrorIs(t, err, domain.ErrAmountOverflow)
}

func TestRecoveryRefund(t *testing.T) {
	refund, err := RecoveryRefund(100, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), refund)

	// An odd setup cost rounds the per-party charge up.
	refund, err = RecoveryRefund(100, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(98), refund)

	refund, err = RecoveryRefund(100, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), refund)
}

func TestRecoveryRefundUnderflow(t *testing.T) {
	_, err := RecoveryRefund(1, 4)
	assert.ErrorIs(t, err, domain.ErrRefundUnderflow)
}

func TestCancelRefund(t *testing.T) {
	refund, err := CancelRefund(100, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(98), refund)

	_, err = CancelRefund(1, 2)
	assert.ErrorIs(t, err, domain.ErrRefundUnderflow)
}
