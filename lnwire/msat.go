package lnwire

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// mSatScale is the number of milli-satoshis in a single satoshi.
const mSatScale uint64 = 1000

// MilliSatoshi are the native unit of the channel engine. A milli-satoshi
// is simply 1/1000th of a satoshi. Channel balances and HTLC amounts are
// denominated in milli-satoshis even though on-chain outputs can only
// express whole satoshis.
type MilliSatoshi uint64

// NewMSatFromSatoshis creates a new MilliSatoshi from a target amount of
// satoshis.
func NewMSatFromSatoshis(sat btcutil.Amount) MilliSatoshi {
	return MilliSatoshi(uint64(sat) * mSatScale)
}

// ToSatoshis converts the target MilliSatoshi amount to satoshis. Any
// fractional satoshi amount is truncated.
func (m MilliSatoshi) ToSatoshis() btcutil.Amount {
	return btcutil.Amount(uint64(m) / mSatScale)
}

// String returns a human readable representation of the amount.
func (m MilliSatoshi) String() string {
	return fmt.Sprintf("%v mSAT", uint64(m))
}
