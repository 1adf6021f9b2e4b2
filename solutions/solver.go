// Package solutions implements UTXO selection: given a required value per
// token, choose a spending tree and a set of UTXOs from that tree (or, in
// the complex fallback, several groups spanning multiple trees) that
// satisfies the circuit's input/output arity constraints. New package,
// built directly from spec.md §4.4; data shapes mirror
// blockchain/token_store.go's per-token balance aggregation, generalized
// from a flat int64 balance map to per-tree UTXO sets.
package solutions

import (
	"sort"

	"github.com/holiman/uint256"

	"umbra-core/wallet"
	"umbra-core/wire"
)

// MaxInputs is the circuit's hard cap on spent notes per sub-transaction.
// spec.md §9 resolves the "is 8 a hard cap" open question: yes.
const MaxInputs = 8

// validInputCounts are the only input arities the circuit accepts.
var validInputCounts = []int{1, 2, 8}

func isValidInputCount(n int) bool {
	for _, v := range validInputCounts {
		if v == n {
			return true
		}
	}
	return false
}

// isValidFor3Outputs additionally forbids 3 inputs when a group has 3
// outputs (regular output + change + unshield), per spec.md §4.4's
// isValidFor3Outputs: the disallowed wire-count combination is 3-in/3-out.
func isValidFor3Outputs(n int) bool {
	return n != 3 && isValidInputCount(n)
}

// Output is one token transfer a spending solution group must cover.
type Output struct {
	Token wire.TokenData
	Value *uint256.Int
}

// SpendingSolutionGroup is a selected set of UTXOs, all from one tree,
// that satisfies one sub-transaction's outputs and unshield value.
type SpendingSolutionGroup struct {
	SpendingTree  uint64
	UTXOs         []*wallet.TXO
	TokenOutputs  []Output
	UnshieldValue *uint256.Int
	TokenData     wire.TokenData
}

func outputCount(outputs []Output, unshieldValue *uint256.Int) int {
	n := len(outputs)
	if unshieldValue != nil && !unshieldValue.IsZero() {
		n++
	}
	if n < 2 {
		n = 2 // every group emits at least a recipient output and a change output
	}
	return n
}

// Solve selects spending solution groups covering outputs and
// unshieldValue for one token, per spec.md §4.4. treeSortedBalances must
// already be sorted by tree number ascending (wallet.BalancesByTree
// guarantees this).
func Solve(treeSortedBalances []wallet.TreeBalance, outputs []Output, unshieldValue *uint256.Int, token wire.TokenData) ([]SpendingSolutionGroup, error) {
	totalRequired := new(uint256.Int)
	for _, o := range outputs {
		totalRequired.Add(totalRequired, o.Value)
	}
	if unshieldValue != nil {
		totalRequired.Add(totalRequired, unshieldValue)
	}

	total := new(uint256.Int)
	for _, tb := range treeSortedBalances {
		total.Add(total, tb.Balance)
	}
	if total.Cmp(totalRequired) < 0 {
		return nil, wire.ErrInsufficientBalance
	}

	nOut := outputCount(outputs, unshieldValue)

	// Simple path: one tree covers the whole requirement.
	for _, tb := range treeSortedBalances {
		utxos, ok := findExactSolutionsOverTargetValue(tb, totalRequired, nOut)
		if ok {
			return []SpendingSolutionGroup{{
				SpendingTree:  tb.TreeNumber,
				UTXOs:         utxos,
				TokenOutputs:  outputs,
				UnshieldValue: unshieldValue,
				TokenData:     token,
			}}, nil
		}
	}

	// Complex path: slice outputs and the unshield across multiple
	// groups, each drawing from one tree, excluding UTXOs already
	// claimed by an earlier group.
	excluded := make(map[string]struct{})
	var groups []SpendingSolutionGroup

	for _, o := range outputs {
		g, ok := createSpendingSolutionGroupsForOutput(treeSortedBalances, o, token, excluded)
		if !ok {
			return nil, wire.ErrConsolidateBalanceRequired
		}
		groups = append(groups, g...)
	}

	if unshieldValue != nil && !unshieldValue.IsZero() {
		g, ok := createSpendingSolutionGroupsForUnshield(treeSortedBalances, unshieldValue, token, excluded)
		if !ok {
			return nil, wire.ErrConsolidateBalanceRequired
		}
		groups = append(groups, g...)
	}

	return groups, nil
}

func txoID(t *wallet.TXO) string {
	return t.Note.Commitment().String()
}

// availableUTXOs returns tb's UTXOs minus any already claimed by an
// earlier group in this selection pass.
func availableUTXOs(tb wallet.TreeBalance, excluded map[string]struct{}) []*wallet.TXO {
	out := make([]*wallet.TXO, 0, len(tb.UTXOs))
	for _, u := range tb.UTXOs {
		if _, skip := excluded[txoID(u)]; !skip {
			out = append(out, u)
		}
	}
	return out
}

// createSpendingSolutionGroupsForOutput covers one output by drawing a
// single-tree group (trying trees low to high), marking its UTXOs
// excluded from later groups in this pass.
func createSpendingSolutionGroupsForOutput(treeSortedBalances []wallet.TreeBalance, o Output, token wire.TokenData, excluded map[string]struct{}) ([]SpendingSolutionGroup, bool) {
	for _, tb := range treeSortedBalances {
		filtered := wallet.TreeBalance{TreeNumber: tb.TreeNumber, UTXOs: availableUTXOs(tb, excluded)}
		filtered.Balance = sumUTXOs(filtered.UTXOs)

		utxos, ok := findExactSolutionsOverTargetValue(filtered, o.Value, 2)
		if !ok {
			continue
		}
		for _, u := range utxos {
			excluded[txoID(u)] = struct{}{}
		}
		return []SpendingSolutionGroup{{
			SpendingTree: tb.TreeNumber,
			UTXOs:        utxos,
			TokenOutputs: []Output{o},
			TokenData:    token,
		}}, true
	}
	return nil, false
}

// createSpendingSolutionGroupsForUnshield covers the unshield remainder,
// identically to createSpendingSolutionGroupsForOutput but against the
// unshield value instead of a regular output.
func createSpendingSolutionGroupsForUnshield(treeSortedBalances []wallet.TreeBalance, unshieldValue *uint256.Int, token wire.TokenData, excluded map[string]struct{}) ([]SpendingSolutionGroup, bool) {
	for _, tb := range treeSortedBalances {
		filtered := wallet.TreeBalance{TreeNumber: tb.TreeNumber, UTXOs: availableUTXOs(tb, excluded)}
		filtered.Balance = sumUTXOs(filtered.UTXOs)

		utxos, ok := findExactSolutionsOverTargetValue(filtered, unshieldValue, 2)
		if !ok {
			continue
		}
		for _, u := range utxos {
			excluded[txoID(u)] = struct{}{}
		}
		return []SpendingSolutionGroup{{
			SpendingTree:  tb.TreeNumber,
			UTXOs:         utxos,
			UnshieldValue: unshieldValue,
			TokenData:     token,
		}}, true
	}
	return nil, false
}

func sumUTXOs(utxos []*wallet.TXO) *uint256.Int {
	total := uint256.NewInt(0)
	for _, u := range utxos {
		total.Add(total, u.Note.Value)
	}
	return total
}

// findExactSolutionsOverTargetValue greedily searches treeBalance's
// UTXOs for a subset whose sum meets target while respecting the
// circuit's allowed input arities (1, 2, or 8; 3 is additionally
// forbidden when outputCount == 3). Candidates are built smallest-value
// first so the result tends toward the least possible change. One
// candidate is built per allowed input count and the smallest input
// count that reaches target wins; other subsets of the same size are not
// searched, so candidates are never compared by leaf-index sum.
func findExactSolutionsOverTargetValue(treeBalance wallet.TreeBalance, target *uint256.Int, outCount int) ([]*wallet.TXO, bool) {
	if treeBalance.Balance != nil && treeBalance.Balance.Cmp(target) < 0 {
		return nil, false
	}

	sorted := append([]*wallet.TXO(nil), treeBalance.UTXOs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Note.Value.Cmp(sorted[j].Note.Value) < 0 })

	var best []*wallet.TXO
	var bestOverSum *uint256.Int

	for _, k := range validInputCounts {
		if outCount == 3 && !isValidFor3Outputs(k) {
			continue
		}
		if k > len(sorted) {
			continue
		}
		candidate, sum, ok := smallestSumAtLeast(sorted, target, k)
		if !ok {
			continue
		}
		over := new(uint256.Int).Sub(sum, target)
		if best == nil || len(candidate) < len(best) || (len(candidate) == len(best) && over.Cmp(bestOverSum) < 0) {
			best, bestOverSum = candidate, over
			if len(best) == 1 {
				break // nothing beats a single matching input
			}
		}
	}

	if best == nil {
		return nil, false
	}
	sort.Slice(best, func(i, j int) bool { return best[i].LeafIndex < best[j].LeafIndex })
	return best, true
}

// smallestSumAtLeast finds, among the smallest-valued utxos in sorted,
// exactly k of them summing to at least target, minimizing the over-sum.
// It is a bounded greedy search, not an exhaustive subset-sum solve:
// starting from the k smallest, it repeatedly swaps in the next-larger
// candidate when doing so still fits under the running best over-sum,
// which is sufficient for wallets with realistic UTXO counts per tree.
func smallestSumAtLeast(sorted []*wallet.TXO, target *uint256.Int, k int) ([]*wallet.TXO, *uint256.Int, bool) {
	if k > len(sorted) {
		return nil, nil, false
	}

	window := append([]*wallet.TXO(nil), sorted[:k]...)
	sum := sumUTXOs(window)

	for i := k; i < len(sorted) && sum.Cmp(target) < 0; i++ {
		// replace the smallest element in the window with the next
		// candidate to grow the sum toward target.
		minIdx := 0
		for j := 1; j < len(window); j++ {
			if window[j].Note.Value.Cmp(window[minIdx].Note.Value) < 0 {
				minIdx = j
			}
		}
		sum.Sub(sum, window[minIdx].Note.Value)
		window[minIdx] = sorted[i]
		sum.Add(sum, sorted[i].Note.Value)
	}

	if sum.Cmp(target) < 0 {
		return nil, nil, false
	}
	return window, sum, true
}
