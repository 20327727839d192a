package repository

import (
	"github.com/google/wire"

	"github.com/ventureforge/pipeline-server/internal/infrastructure/repository/artifactrepo"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/repository/auditrepo"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/repository/cacherepo"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/repository/creditrepo"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/repository/messagerepo"
	"github.com/ventureforge/pipeline-server/internal/infrastructure/repository/projectrepo"
)

// RepositoryProvider wires every GORM-backed repository.
var RepositoryProvider = wire.NewSet(
	messagerepo.NewRepository,
	artifactrepo.NewRepository,
	artifactrepo.NewStateRepository,
	cacherepo.NewRepository,
	creditrepo.NewRepository,
	projectrepo.NewRepository,
	auditrepo.NewRepository,
	auditrepo.NewUsageRepository,
)
