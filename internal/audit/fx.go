package audit

import (
	"github.com/baladiya/wastebilling/internal/audit/repository"
	"github.com/baladiya/wastebilling/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
