package payment

import (
	"github.com/veciapp/fiado/internal/payment/repository"
	"github.com/veciapp/fiado/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
