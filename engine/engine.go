package engine

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"umbra-core/ingest"
	"umbra-core/keys"
	"umbra-core/kv"
	"umbra-core/log"
	"umbra-core/merkletree"
	"umbra-core/wallet"
	"umbra-core/wire"
)

// chainState is everything the engine tracks for one loaded chain:
// merkletrees[type][id] and railgunSmartWalletContracts[type][id]
// collapse to one entry each here since chainKey already encodes both
// halves of spec.md §4.6's (chainType, chainId) pair; the wallet map
// stays keyed by wallet id exactly as spec.md describes.
type chainState struct {
	chain       keys.Chain
	chainKey    string
	forest      *merkletree.Forest
	nullifiers  *ingest.NullifierStore
	commitments *ingest.CommitmentLog
	tokens      *ingest.TokenRegistry
	ingester    *ingest.Ingester
	contract    ContractAdapter
	provider    Provider
	wallets     map[string]*wallet.Wallet
}

// Engine is the facade a host application drives: load a chain, register
// wallets on it, and periodically call ScanHistory to ingest new chain
// state and scan every registered wallet against it.
type Engine struct {
	store  kv.Store
	depth  uint32
	logger log.Logger

	mu     sync.Mutex
	chains map[string]*chainState
}

// New returns an Engine backed by store, mirroring trees at the given
// depth (merkletree.DefaultDepth for the production protocol).
func New(store kv.Store, depth uint32) *Engine {
	return &Engine{store: store, depth: depth, logger: log.Noop{}, chains: make(map[string]*chainState)}
}

// SetLogger wires a real Logger in place of the default no-op.
func (e *Engine) SetLogger(l log.Logger) {
	e.logger = l
}

func lastSyncedBlockKey(chainKey string) []byte {
	return []byte(fmt.Sprintf("engine/lastSyncedBlock/%s", chainKey))
}

// GetLastSyncedBlock returns the persisted checkpoint for chain and
// whether one has been recorded yet. Per spec.md §4.6, "reads of an unset
// key return not present" rather than a zero value indistinguishable from
// a real checkpoint at block 0.
func (e *Engine) GetLastSyncedBlock(ctx context.Context, chain keys.Chain) (block uint64, present bool, err error) {
	b, err := e.store.Get(ctx, lastSyncedBlockKey(chain.String()))
	if err == kv.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}
	if len(b) != 8 {
		return 0, false, fmt.Errorf("engine: malformed last-synced-block value for %s", chain)
	}
	return binary.BigEndian.Uint64(b), true, nil
}

// SetLastSyncedBlock persists the checkpoint for chain.
func (e *Engine) SetLastSyncedBlock(ctx context.Context, chain keys.Chain, n uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	if err := e.store.Put(ctx, lastSyncedBlockKey(chain.String()), buf[:]); err != nil {
		return fmt.Errorf("%w: %v", wire.ErrStoreIO, err)
	}
	return nil
}

// LoadNetwork instantiates (or, if persisted state exists, resumes)
// tree and nullifier-store state for chain and runs an initial backfill
// from deploymentBlock (or the persisted checkpoint, if later) to the
// chain's current head via the injected provider/contract pair. Calling
// it again for an already-loaded chain is a no-op, matching "instantiates
// or resumes" rather than re-initializing live state out from under
// registered wallets.
func (e *Engine) LoadNetwork(ctx context.Context, chain keys.Chain, provider Provider, contract ContractAdapter, deploymentBlock uint64) error {
	ck := chain.String()

	e.mu.Lock()
	if _, exists := e.chains[ck]; exists {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	validator := func(_ string, treeNumber uint64, root wire.Hash) bool {
		ok, err := contract.ValidateMerkleRoot(ctx, treeNumber, root)
		return err == nil && ok
	}

	forest, err := merkletree.LoadForest(ctx, ck, e.depth, e.store, validator)
	if err != nil {
		return err
	}
	nullifiers := ingest.NewNullifierStore(e.store)
	commitments := ingest.NewCommitmentLog(e.store, ck)
	tokens := ingest.NewTokenRegistry(e.store, ck)
	ingester := ingest.NewIngester(ck, forest, nullifiers, commitments, tokens)

	cs := &chainState{
		chain:       chain,
		chainKey:    ck,
		forest:      forest,
		nullifiers:  nullifiers,
		commitments: commitments,
		tokens:      tokens,
		ingester:    ingester,
		contract:    contract,
		provider:    provider,
		wallets:     make(map[string]*wallet.Wallet),
	}

	startBlock := deploymentBlock
	if persisted, present, err := e.GetLastSyncedBlock(ctx, chain); err != nil {
		return err
	} else if present && persisted > startBlock {
		startBlock = persisted
	}

	chainLog := e.logger.Fields("chain", ck)
	chainLog.Info("loading network, backfilling from deployment/checkpoint")

	if _, err := e.ingestSince(ctx, cs, startBlock); err != nil {
		chainLog.Error("initial backfill failed: " + err.Error())
		return err
	}

	head, err := provider.GetBlockNumber(ctx)
	if err != nil {
		return err
	}
	if err := e.SetLastSyncedBlock(ctx, chain, head); err != nil {
		return err
	}

	e.mu.Lock()
	e.chains[ck] = cs
	e.mu.Unlock()
	chainLog.Info("network loaded")
	return nil
}

// RegisterWallet loads w onto chain, so subsequent ScanHistory calls scan
// it. chain must already be loaded via LoadNetwork. w.Load is called
// immediately so a wallet re-registered after a host restart resumes from
// its persisted TXOs and scan cursor rather than rescanning from genesis.
func (e *Engine) RegisterWallet(ctx context.Context, chain keys.Chain, w *wallet.Wallet) error {
	e.mu.Lock()
	cs, ok := e.chains[chain.String()]
	e.mu.Unlock()
	if !ok {
		return wire.ErrChainNotLoaded
	}
	if err := w.Load(ctx, cs.chainKey); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	cs.wallets[w.ID] = w
	return nil
}

// ScanHistory ingests everything new since chain's last-synced checkpoint
// and then scans every wallet registered on it, per spec.md §4.6: "drives
// full ingestion then wallet scans for all loaded wallets."
func (e *Engine) ScanHistory(ctx context.Context, chain keys.Chain) error {
	e.mu.Lock()
	cs, ok := e.chains[chain.String()]
	e.mu.Unlock()
	if !ok {
		return wire.ErrChainNotLoaded
	}

	last, present, err := e.GetLastSyncedBlock(ctx, chain)
	if err != nil {
		return err
	}
	startBlock := uint64(0)
	if present {
		startBlock = last
	}

	result, err := e.ingestSince(ctx, cs, startBlock)
	if err != nil {
		return err
	}

	head, err := cs.provider.GetBlockNumber(ctx)
	if err != nil {
		return err
	}
	if err := e.SetLastSyncedBlock(ctx, chain, head); err != nil {
		return err
	}

	for _, w := range cs.wallets {
		walletLog := e.logger.Fields("chain", cs.chainKey, "wallet", w.ID)
		if err := w.ScanBalances(ctx, cs.chainKey, cs.forest, cs.commitments, cs.tokens, nil); err != nil {
			walletLog.Error("scan failed: " + err.Error())
			return err
		}
		if err := w.ApplyIngestResult(ctx, cs.chainKey, result.Nullifiers); err != nil {
			walletLog.Error("apply nullifiers failed: " + err.Error())
			return err
		}
		walletLog.Debug("scan complete")
	}
	return nil
}

// ingestSince runs the quickSync backfill hook for cs from startBlock to
// the provider's current head and applies the result to cs's forest and
// nullifier store, returning the applied events so the caller can feed
// them to registered wallets.
func (e *Engine) ingestSince(ctx context.Context, cs *chainState, startBlock uint64) (ingest.QuickSyncResult, error) {
	quickSync := newQuickSync(cs.contract, cs.provider)
	result, err := quickSync(ctx, cs.chainKey, startBlock)
	if err != nil {
		return ingest.QuickSyncResult{}, err
	}
	if err := cs.ingester.Apply(ctx, result.Nullifiers, result.Shields, result.Transacts, result.Unshields); err != nil {
		return ingest.QuickSyncResult{}, err
	}
	return result, nil
}
