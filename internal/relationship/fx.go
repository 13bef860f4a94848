package relationship

import (
	"github.com/veciapp/fiado/internal/relationship/repository"
	"github.com/veciapp/fiado/internal/relationship/service"
	"go.uber.org/fx"
)

var Module = fx.Module("relationship.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
