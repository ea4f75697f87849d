package main

import (
	"context"
	"errors"

	"github.com/samcharles93/rwkvffi/internal/logger"
	"github.com/samcharles93/rwkvffi/internal/runtime"
)

// openRuntime loads the prefab when one is given, otherwise the raw model.
func openRuntime(ctx context.Context) (*runtime.Runtime, error) {
	log := logger.FromContext(ctx)
	switch {
	case prefabPath != "":
		return runtime.LoadPrefab(ctx, prefabPath, log)
	case modelPath != "":
		return runtime.Load(ctx, modelPath, loadOptions(), log)
	}
	return nil, errors.New("--model or --prefab is required")
}
