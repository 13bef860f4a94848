package invoice

import (
	"github.com/veciapp/fiado/internal/invoice/repository"
	"github.com/veciapp/fiado/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
