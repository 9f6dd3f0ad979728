package domain_test

import (
	"context"
	"testing"

	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestChainHooks(t *testing.T) {
	var calls []string
	a := domain.LifecycleHooks{
		OnStepRun: func(context.Context, *domain.StepEvent) { calls = append(calls, "a") },
	}
	b := domain.LifecycleHooks{
		OnStepRun:  func(context.Context, *domain.StepEvent) { calls = append(calls, "b") },
		OnTreeSwap: func(context.Context, *domain.TreeEvent) { calls = append(calls, "swap") },
	}

	hooks := domain.ChainHooks(a, domain.LifecycleHooks{}, b)
	hooks.OnStepRun(context.Background(), &domain.StepEvent{})
	hooks.OnTreeSwap(context.Background(), &domain.TreeEvent{})

	assert.Equal(t, []string{"a", "b", "swap"}, calls)
	assert.Nil(t, hooks.OnCommandDone)
}
