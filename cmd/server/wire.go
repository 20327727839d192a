//go:build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/ventureforge/pipeline-server/internal/domain"
	"github.com/ventureforge/pipeline-server/internal/infrastructure"
	"github.com/ventureforge/pipeline-server/internal/interfaces"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/routes"
)

func CreateApplication() (*Application, error) {
	wire.Build(
		domain.ServiceProvider,
		infrastructure.InfrastructureProvider,
		routes.RouteProvider,
		interfaces.InterfacesProvider,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil
}
