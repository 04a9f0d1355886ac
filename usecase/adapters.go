package usecase

import (
	"socialops/domain/model"
	"socialops/infrastructure/clients/platform"
)

// AdapterResolver selects the adapter for a platform. *platform.Registry
// implements it.
type AdapterResolver interface {
	Get(p model.Platform) (platform.Adapter, error)
}
