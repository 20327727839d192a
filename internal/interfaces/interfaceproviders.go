package interfaces

import (
	"github.com/google/wire"

	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver"
)

var InterfacesProvider = wire.NewSet(
	httpserver.NewHTTPServer,
)
