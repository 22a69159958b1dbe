package events

import (
	"strconv"
	"time"

	"github.com/holiman/uint256"
)

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

func formatUnix(ts time.Time) string {
	return strconv.FormatInt(ts.Unix(), 10)
}

func zeroAddress(addr [20]byte) bool {
	return addr == [20]byte{}
}
