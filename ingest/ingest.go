package ingest

import (
	"context"

	"umbra-core/merkletree"
	"umbra-core/note"
)

// QuickSyncFunc backfills everything observed between startBlock and
// chain head for chainKey. The engine facade injects a provider-backed
// implementation; tests inject a canned result.
type QuickSyncFunc func(ctx context.Context, chainKey string, startBlock uint64) (QuickSyncResult, error)

// Ingester applies normalized chain events to one chain's Merkle forest,
// nullifier store, and commitment log. One Ingester is owned by the
// engine per chain.
type Ingester struct {
	ChainKey    string
	Forest      *merkletree.Forest
	Nullifiers  *NullifierStore
	Commitments *CommitmentLog // nil is valid: envelopes are simply not logged
	Tokens      *TokenRegistry // nil is valid: token identities are simply not indexed
}

func NewIngester(chainKey string, forest *merkletree.Forest, nullifiers *NullifierStore, commitments *CommitmentLog, tokens *TokenRegistry) *Ingester {
	return &Ingester{ChainKey: chainKey, Forest: forest, Nullifiers: nullifiers, Commitments: commitments, Tokens: tokens}
}

// Apply normalizes one round of events: nullifiers are recorded first,
// then shield/transact/unshield commitments are queued and the forest is
// updated in a single pass, matching ProcessShieldedTransaction's
// nullifier-then-commitment ordering. Leaves written out of order across
// calls are buffered by the forest itself until their prefix closes; a
// rejected root propagates merkletree's rollback error unchanged so the
// caller knows it must resynchronize.
func (g *Ingester) Apply(ctx context.Context, nullifierEvents []NullifierEvent, shields, transacts []CommitmentEvent, unshields []UnshieldEvent) error {
	for _, ev := range nullifierEvents {
		for _, nf := range ev.Nullifiers {
			if err := g.Nullifiers.Mark(ctx, g.ChainKey, nf, ev.BlockNumber); err != nil {
				return err
			}
		}
	}

	for _, ev := range shields {
		if err := g.Forest.QueueLeaves(ev.TreeNumber, ev.StartIndex, ev.Commitments); err != nil {
			return err
		}
		if err := g.recordCommitments(ctx, ev); err != nil {
			return err
		}
		if err := g.recordTokens(ctx, ev); err != nil {
			return err
		}
	}
	for _, ev := range transacts {
		if err := g.Forest.QueueLeaves(ev.TreeNumber, ev.StartIndex, ev.Commitments); err != nil {
			return err
		}
		if err := g.recordCommitments(ctx, ev); err != nil {
			return err
		}
	}
	for _, ev := range unshields {
		if len(ev.Commitments) == 0 {
			continue
		}
		if err := g.Forest.QueueLeaves(ev.TreeNumber, ev.StartIndex, ev.Commitments); err != nil {
			return err
		}
		if err := g.recordCommitments(ctx, ev.CommitmentEvent); err != nil {
			return err
		}
	}

	return g.Forest.UpdateTrees()
}

// recordCommitments logs each new leaf's envelope (if one was published
// alongside it) for later wallet scanning. A no-op when the ingester has
// no commitment log wired.
func (g *Ingester) recordCommitments(ctx context.Context, ev CommitmentEvent) error {
	if g.Commitments == nil {
		return nil
	}
	for i, cm := range ev.Commitments {
		var env note.Envelope
		if i < len(ev.Envelopes) {
			env = ev.Envelopes[i]
		}
		if err := g.Commitments.Record(ctx, ev.TreeNumber, ev.StartIndex+uint64(i), cm, env); err != nil {
			return err
		}
	}
	return nil
}

// recordTokens indexes the full token identity published alongside each
// shield commitment, if any. A no-op when the ingester has no token
// registry wired.
func (g *Ingester) recordTokens(ctx context.Context, ev CommitmentEvent) error {
	if g.Tokens == nil {
		return nil
	}
	for i := range ev.Commitments {
		if i >= len(ev.Tokens) {
			break
		}
		if err := g.Tokens.Record(ctx, ev.Tokens[i]); err != nil {
			return err
		}
	}
	return nil
}

// Backfill runs quickSync for chainKey starting at startBlock and applies
// the result, per spec.md §4.5's loadNetwork backfill hook.
func (g *Ingester) Backfill(ctx context.Context, startBlock uint64, quickSync QuickSyncFunc) error {
	result, err := quickSync(ctx, g.ChainKey, startBlock)
	if err != nil {
		return err
	}
	return g.Apply(ctx, result.Nullifiers, result.Shields, result.Transacts, result.Unshields)
}
