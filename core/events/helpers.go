package events

import "math/big"

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
