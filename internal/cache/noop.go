package cache

import (
	"context"

	"github.com/RegistryAccord/registryaccord-resolver-go/internal/model"
)

type noop struct{}

// NewNoop returns a cache that never stores anything.
func NewNoop() Cache { return noop{} }

func (noop) Get(context.Context, string) (model.ResolutionResult, bool, error) {
	return model.ResolutionResult{}, false, nil
}

func (noop) Set(context.Context, string, model.ResolutionResult) error { return nil }
func (noop) Delete(context.Context, string) error                        { return nil }
func (noop) Clear(context.Context) error                                 { return nil }
func (noop) Close() error                                                { return nil }
