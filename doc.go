/*
Package pipetree is a reactive engine for human-in-the-loop computation pipelines.

A pipeline is a tree of steps. Each step is bound to one function call with
inputs and outputs. Pipelines are either static (their children are fixed by
configuration) or sequential (their children are dynamic items the user adds,
removes and reorders at runtime).

# Concept

Every change goes through a single command queue. The engine drains commands
one at a time against the current state tree, then republishes four
projections derived from one traversal of the tree: the snapshot, the
consistency of every step, validation results and run states. A fifth flag
tells views whether a structural edit or a run is in flight.

Steps unlock sequentially. A step is enabled once every step before it holds
a consistent result; running a step unlocks only the next one. Changing the
inputs of a step that already produced outputs marks it and everything after
it inconsistent.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/pipetree"
		"github.com/aretw0/pipetree/pkg/domain"
		"github.com/aretw0/pipetree/pkg/provider"
	)

	func main() {
		providers := provider.NewRegistry()
		if _, err := providers.LoadDir("./pipelines"); err != nil {
			log.Fatal(err)
		}

		eng, err := pipetree.New(pipetree.WithProviders(providers))
		if err != nil {
			log.Fatal(err)
		}
		defer eng.Close()

		ctx := context.Background()
		if _, err := eng.Do(ctx, domain.InitPipeline{Provider: "Demo:Report"}); err != nil {
			log.Fatal(err)
		}
		fmt.Println(eng.Projections().State.ItemID)
	}

Persisted pipelines are a wrapper record plus one record per node, linked to
their parent. Any ports.RecordStore works: memory, file and Redis stores ship
in pkg/adapters, and pkg/persistence/middleware adds encryption and PII
masking on top of them.
*/
package pipetree
