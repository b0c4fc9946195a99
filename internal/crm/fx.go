package crm

import (
	"github.com/donorsync/donorsync/internal/crm/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("crm",
	fx.Provide(repository.Provide),
)
