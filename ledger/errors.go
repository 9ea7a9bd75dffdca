package ledger

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/semanticallynull/rideledger-backend/internal/apperr"
	"github.com/semanticallynull/rideledger-backend/ride"
)

var (
	ErrLedger      = apperr.New(apperr.Ledger, "LEDGER_ERROR", "ledger rejected the request")
	ErrUnconfirmed = apperr.New(apperr.Unconfirmed, "UNCONFIRMED_SUBMISSION", "transaction submitted but not yet confirmed")
)

// Revert reasons the contract is known to raise, matched as lower-cased substrings in order.
var revertReasons = []struct {
	fragment string
	err      *apperr.Error
}{
	{"does not exist", ride.ErrNotFound},
	{"only the rider", ride.ErrNotOwner},
	{"already accepted", ride.ErrAlreadyAccepted},
	{"not accepted", ride.ErrNotAccepted},
	{"already completed", ride.ErrAlreadyTerminal},
	{"cancelled", ride.ErrAlreadyCancelled},
}

// classify maps a node error onto the error taxonomy. Known revert reasons become ride errors;
// everything else, including unknown reverts, is a LedgerError carrying the raw text.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}

	reason, reverted := revertReason(err)
	if !reverted {
		return ErrLedger.Wrap(err)
	}
	return mapRevert(reason)
}

func mapRevert(reason string) error {
	lower := strings.ToLower(reason)
	for _, r := range revertReasons {
		if strings.Contains(lower, r.fragment) {
			return r.err.WithReason("%s", reason)
		}
	}
	return ErrLedger.WithReason("reverted: %s", reason)
}

// revertReason extracts the Error(string) payload from a failed call. Nodes report it either
// as ABI-encoded error data or only in the message text.
func revertReason(err error) (string, bool) {
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason, true
				}
			}
		}
	}

	msg := err.Error()
	for _, marker := range []string{"execution reverted", "VM Exception while processing transaction: revert"} {
		if i := strings.Index(msg, marker); i >= 0 {
			reason := strings.TrimSpace(strings.TrimPrefix(msg[i+len(marker):], ":"))
			return reason, true
		}
	}
	return "", false
}
