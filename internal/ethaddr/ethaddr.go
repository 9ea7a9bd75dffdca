// Package ethaddr validates ledger account addresses.
package ethaddr

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/semanticallynull/rideledger-backend/internal/apperr"
)

var ErrInvalidAddress = apperr.New(apperr.Validation, "INVALID_ADDRESS", "invalid ethereum address")

// Normalize validates s and returns its EIP-55 checksummed form. All-lowercase and
// all-uppercase hex are accepted as unchecksummed; mixed case must carry a valid checksum.
func Normalize(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", ErrInvalidAddress.WithReason("%q", s)
	}

	checksummed := common.HexToAddress(s).Hex()
	body := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return checksummed, nil
	}
	if "0x"+body != checksummed {
		return "", ErrInvalidAddress.WithReason("bad checksum %q", s)
	}
	return checksummed, nil
}

// Parse is Normalize returning a go-ethereum address.
func Parse(s string) (common.Address, error) {
	n, err := Normalize(s)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(n), nil
}

// Equal compares two addresses ignoring case.
func Equal(a, b string) bool {
	return strings.EqualFold(a, b)
}
