package routes

import (
	"github.com/google/wire"

	"github.com/ventureforge/pipeline-server/internal/config"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/handlers/artifacthandler"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/handlers/chathandler"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/handlers/messagehandler"
	"github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/handlers/projecthandler"
	v1 "github.com/ventureforge/pipeline-server/internal/interfaces/httpserver/routes/v1"
)

// ProvideChatConfig maps environment config onto the chat gateway tunables.
func ProvideChatConfig(cfg *config.Config) chathandler.Config {
	return chathandler.Config{
		Model:           cfg.CompletionModel,
		MaxMessages:     cfg.MaxMessages,
		MaxMessageChars: cfg.MaxMessageChars,
		InitialCredits:  cfg.InitialCredits,
		CacheTTL:        cfg.CacheTTL,
		ReplayChunk:     cfg.CacheReplayChunk,
		ReplayDelay:     cfg.CacheReplayDelay,
	}
}

var RouteProvider = wire.NewSet(
	// Handlers
	ProvideChatConfig,
	chathandler.NewHandler,
	projecthandler.NewHandler,
	artifacthandler.NewHandler,
	messagehandler.NewHandler,

	// Routes
	v1.NewV1Route,
)
