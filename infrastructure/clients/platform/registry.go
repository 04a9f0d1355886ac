package platform

import (
	"fmt"
	"sort"

	"socialops/domain/model"
)

// Registry is the closed set of adapters the process was configured with.
type Registry struct {
	adapters map[model.Platform]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.Platform]Adapter, len(adapters))}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		r.adapters[a.Platform()] = a
	}
	return r
}

func (r *Registry) Get(p model.Platform) (Adapter, error) {
	if r != nil {
		if a, ok := r.adapters[p]; ok {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", model.ErrUnsupportedPlatform, p)
}

func (r *Registry) Platforms() []model.Platform {
	if r == nil {
		return nil
	}
	out := make([]model.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
