package wallet

import "github.com/holiman/uint256"

// TreeBalance aggregates one token's unspent UTXOs within a single tree.
type TreeBalance struct {
	TreeNumber uint64
	Balance    *uint256.Int
	UTXOs      []*TXO
}

// BalancesByTree groups unspent TXOs by tokenHash and then by tree,
// sorted by tree number, per spec.md §4.3's `balancesByTree`. This is the
// shape the solutions engine consumes directly.
func (w *Wallet) BalancesByTree(chainKey string) map[string][]TreeBalance {
	byToken := make(map[string]map[uint64]*TreeBalance)

	for _, txo := range w.unspentTXOs(chainKey) {
		tokenKey := txo.Note.TokenHash.String()
		byTree, ok := byToken[tokenKey]
		if !ok {
			byTree = make(map[uint64]*TreeBalance)
			byToken[tokenKey] = byTree
		}
		tb, ok := byTree[txo.TreeNumber]
		if !ok {
			tb = &TreeBalance{TreeNumber: txo.TreeNumber, Balance: uint256.NewInt(0)}
			byTree[txo.TreeNumber] = tb
		}
		tb.Balance = new(uint256.Int).Add(tb.Balance, txo.Note.Value)
		tb.UTXOs = append(tb.UTXOs, txo)
	}

	out := make(map[string][]TreeBalance, len(byToken))
	for tokenKey, byTree := range byToken {
		list := make([]TreeBalance, 0, len(byTree))
		for _, tb := range byTree {
			list = append(list, *tb)
		}
		sortTreeBalances(list)
		out[tokenKey] = list
	}
	return out
}

// GetBalance sums every unspent TXO's value for tokenHash across every
// tree on chainKey.
func (w *Wallet) GetBalance(chainKey, tokenHash string) *uint256.Int {
	total := uint256.NewInt(0)
	for _, tb := range w.BalancesByTree(chainKey)[tokenHash] {
		total.Add(total, tb.Balance)
	}
	return total
}

func sortTreeBalances(list []TreeBalance) {
	for i := 1; i < len(list); i++ {
		for j := i; j > 0 && list[j].TreeNumber < list[j-1].TreeNumber; j-- {
			list[j], list[j-1] = list[j-1], list[j]
		}
	}
}
