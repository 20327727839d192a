package domain

import (
	"github.com/google/wire"

	"github.com/ventureforge/pipeline-server/internal/domain/artifact"
	"github.com/ventureforge/pipeline-server/internal/domain/pipeline"
)

// ServiceProvider provides all domain services.
var ServiceProvider = wire.NewSet(
	artifact.NewService,
	pipeline.NewContextBuilder,
)
