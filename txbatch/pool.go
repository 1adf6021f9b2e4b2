package txbatch

import (
	"context"
	"sync"

	"umbra-core/wire"
)

// defaultProverConcurrency bounds how many groups are proved at once when
// a batch does not set one explicitly.
const defaultProverConcurrency = 4

// proveConcurrently fetches artifacts and proves every tx in txs over a
// bounded pool of goroutines, mirroring the teacher's network/sync.go
// pattern of a goroutine per unit of work guarded by a shared mutex,
// generalized here into a small reusable worker pool instead of one
// goroutine per peer connection. This is a deliberate stdlib choice
// (sync + channels, not golang.org/x/sync/errgroup): no repo in the pack
// imports x/sync, and the teacher hand-rolls this shape itself rather
// than reaching for a library for it.
func proveConcurrently(ctx context.Context, txs []*Transaction, prover Prover, artifacts ArtifactGetter, concurrency int, progressCb ProgressFunc) error {
	if concurrency <= 0 {
		concurrency = defaultProverConcurrency
	}
	if concurrency > len(txs) {
		concurrency = len(txs)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	completed := 0

	worker := func() {
		defer wg.Done()
		for i := range jobs {
			tx := txs[i]

			if _, err := artifacts.GetArtifacts(ctx, len(tx.Nullifiers), len(tx.CommitmentsOut)); err != nil {
				recordErr(&mu, &firstErr, wire.ErrArtifactUnavailable)
				continue
			}

			artifactID := ArtifactID(len(tx.Nullifiers), len(tx.CommitmentsOut))
			proof, err := prover.Prove(ctx, artifactID, encodePublicInputs(tx), encodeWitness(tx.InclusionProofs))

			mu.Lock()
			if err != nil {
				if firstErr == nil {
					firstErr = wire.ErrProverFailed
				}
			} else {
				tx.Proof = proof
			}
			completed++
			if progressCb != nil {
				progressCb(float64(completed) / float64(len(txs)))
			}
			mu.Unlock()
		}
	}

	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker()
	}
	for i := range txs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return firstErr
}

func recordErr(mu *sync.Mutex, firstErr *error, err error) {
	mu.Lock()
	defer mu.Unlock()
	if *firstErr == nil {
		*firstErr = err
	}
}
