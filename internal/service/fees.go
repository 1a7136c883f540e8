package service

import (
	"fmt"
	"strconv"
	"strings"
)

// Fee is a pass-through charge a channel adds on top of the net price
type Fee struct {
	RateBP int64 // basis points of the gross amount
	Fixed  int64 // flat amount in currency units
}

// FeePolicy maps a payment channel (gateway payment type) to its pass-through fee
type FeePolicy map[string]Fee

// Expected returns the gross amount the gateway should settle for a net
// booking amount paid through channel. Channels without a fee settle the net.
func (p FeePolicy) Expected(amount int64, channel string) int64 {
	fee, ok := p[strings.ToLower(strings.TrimSpace(channel))]
	if !ok || (fee.RateBP == 0 && fee.Fixed == 0) {
		return amount
	}
	num := (amount + fee.Fixed) * 10000
	den := 10000 - fee.RateBP
	return (num + den - 1) / den
}

// ParseFeePolicy reads "channel:rate_bp:fixed" entries separated by commas,
// e.g. "qris:70:0,credit_card:290:2000".
func ParseFeePolicy(s string) (FeePolicy, error) {
	policy := FeePolicy{}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid fee entry %q: want channel:rate_bp:fixed", entry)
		}
		rate, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || rate < 0 || rate >= 10000 {
			return nil, fmt.Errorf("invalid fee rate in %q", entry)
		}
		fixed, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || fixed < 0 {
			return nil, fmt.Errorf("invalid fixed fee in %q", entry)
		}
		policy[strings.ToLower(parts[0])] = Fee{RateBP: rate, Fixed: fixed}
	}
	return policy, nil
}
