package wallet

import (
	"github.com/holiman/uint256"

	"umbra-core/note"
	"umbra-core/wire"
)

// TokenAmount is one token/value pair inside a history record.
type TokenAmount struct {
	Token wire.TokenData
	Value *uint256.Int
}

// TransactionHistoryEntry is one formatted history record per
// originating transaction id, partitioned per spec.md §4.3.
type TransactionHistoryEntry struct {
	TxID                  wire.Hash
	ReceiveTokenAmounts   []TokenAmount
	TransferTokenAmounts  []TokenAmount
	RelayerFeeTokenAmount *TokenAmount
	ChangeTokenAmounts    []TokenAmount
	UnshieldTokenAmounts  []TokenAmount
}

// GetTransactionHistory groups every TXO for chainKey by its originating
// transaction id and partitions each group's amounts by role, then merges
// in the sender-side outgoing log recorded by the transaction batcher at
// generation time (outgoing records are not scanned TXOs — a note
// encrypted to someone else's viewing key does not decrypt under ours).
// Grounded on spec.md §4.3's getTransactionHistory: receive (incoming,
// not our change), transfer (outgoing non-fee non-change, sender side),
// relayer fee (at most one per tx), change, and unshield — with the rule
// that an apparent receive is suppressed when a change record in the
// same transaction has an identical token and amount (it is our own
// change arriving back, not a gift from someone else).
// ScanBalances does not set a TXO's TxID, so all scanned TXOs of chainKey
// fall into a single group keyed by the zero hash; only the outgoing
// log's entries are keyed by real transaction ids.
func (w *Wallet) GetTransactionHistory(chainKey string, outgoing map[wire.Hash][]TokenAmount) []TransactionHistoryEntry {
	byTx := make(map[wire.Hash][]*TXO)
	var order []wire.Hash
	for _, txo := range w.txosFor(chainKey) {
		if _, seen := byTx[txo.TxID]; !seen {
			order = append(order, txo.TxID)
		}
		byTx[txo.TxID] = append(byTx[txo.TxID], txo)
	}
	for txID := range outgoing {
		if _, seen := byTx[txID]; !seen {
			order = append(order, txID)
		}
	}

	entries := make([]TransactionHistoryEntry, 0, len(order))
	for _, txID := range order {
		entry := partitionTransaction(txID, byTx[txID])
		entry.TransferTokenAmounts = outgoing[txID]
		entries = append(entries, entry)
	}
	return entries
}

func partitionTransaction(txID wire.Hash, txos []*TXO) TransactionHistoryEntry {
	entry := TransactionHistoryEntry{TxID: txID}

	var receives []TokenAmount
	var changes []TokenAmount

	for _, txo := range txos {
		amt := TokenAmount{Token: txo.Note.TokenData, Value: txo.Note.Value}
		switch {
		case txo.Note.Kind == note.KindUnshield:
			entry.UnshieldTokenAmounts = append(entry.UnshieldTokenAmounts, amt)
		case txo.Note.Memo.OutputType == note.OutputRelayerFee:
			fee := amt
			entry.RelayerFeeTokenAmount = &fee
		case txo.Note.Memo.OutputType == note.OutputChange:
			changes = append(changes, amt)
		default:
			receives = append(receives, amt)
		}
	}

	for _, r := range receives {
		if hasMatchingChange(changes, r) {
			continue
		}
		entry.ReceiveTokenAmounts = append(entry.ReceiveTokenAmounts, r)
	}
	entry.ChangeTokenAmounts = changes

	return entry
}

func hasMatchingChange(changes []TokenAmount, r TokenAmount) bool {
	for _, c := range changes {
		if c.Token.Equal(r.Token) && c.Value.Eq(r.Value) {
			return true
		}
	}
	return false
}
