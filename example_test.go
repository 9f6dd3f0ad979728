package pipetree_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/pipetree"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/provider"
)

// ExampleNew builds a two-step pipeline in memory, runs it and reads the result
// from the projections.
func ExampleNew() {
	providers := provider.NewRegistry()
	err := providers.RegisterConfig(&domain.PipelineConfiguration{
		Provider: "Example:Sum",
		ItemConfig: domain.ItemConfig{
			ID: "sum",
			Steps: []domain.ItemConfig{
				{ID: "numbers", NqName: "Core:Echo", Inputs: map[string]any{"a": 2.0, "b": 3.0}},
				{ID: "total", NqName: "Core:Sum"},
			},
			Links: []domain.LinkConfig{
				{From: "numbers/a", To: "total/a"},
				{From: "numbers/b", To: "total/b"},
			},
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	engine, err := pipetree.New(pipetree.WithProviders(providers))
	if err != nil {
		log.Fatal(err)
	}
	defer engine.Close()

	ctx := context.Background()
	if _, err := engine.Do(ctx, domain.InitPipeline{Provider: "Example:Sum"}); err != nil {
		log.Fatal(err)
	}

	steps := engine.Projections().State.Children
	numbers, total := steps[0].UUID, steps[1].UUID
	fmt.Println("total enabled:", engine.Projections().Consistency[total].Enabled)

	if _, err := engine.Do(ctx, domain.RunStep{UUID: numbers}); err != nil {
		log.Fatal(err)
	}
	fmt.Println("total enabled:", engine.Projections().Consistency[total].Enabled)

	if _, err := engine.Do(ctx, domain.RunStep{UUID: total}); err != nil {
		log.Fatal(err)
	}
	p := engine.Projections()
	fmt.Println("sum:", p.State.Children[1].Outputs["sum"])
	fmt.Println("state:", p.Consistency[total].State)

	// Output:
	// total enabled: false
	// total enabled: true
	// sum: 5
	// state: consistent
}
