package main

import (
	"fmt"
	stdlog "log"

	"umbra-core/config"
	"umbra-core/engine"
	"umbra-core/kv"
	applog "umbra-core/log"
)

func main() {
	fmt.Println("Starting umbra-core engine...")

	cfg := config.Load()

	store, err := kv.OpenBoltStore(cfg.DataDir)
	if err != nil {
		stdlog.Fatalf("Failed to open key-value store: %v", err)
	}
	defer store.Close()
	fmt.Printf("Key-value store opened at %s\n", cfg.DataDir)

	e := engine.New(store, cfg.TreeDepth)
	e.SetLogger(applog.NewLogrus(cfg.LogLevel))

	fmt.Printf("Tree depth:          %d\n", cfg.TreeDepth)
	fmt.Printf("Scan batch size:     %d\n", cfg.ScanBatchSize)
	fmt.Printf("Prover concurrency:  %d\n", cfg.ProverConcurrency)
	fmt.Printf("Overall min gas price: %d\n", cfg.OverallMinGasPrice)

	// A host application calls engine.LoadNetwork per chain with its own
	// Provider/ContractAdapter pair (RPC connectivity and the
	// smart-contract client are external collaborators this core only
	// defines interfaces for, per spec.md's Non-goals), then
	// engine.RegisterWallet and a periodic engine.ScanHistory to keep
	// wallets current. This composition root stops at constructing the
	// engine itself.
	_ = e

	fmt.Println("Engine ready. Call LoadNetwork with a host-supplied provider and contract adapter to begin syncing a chain.")
}
