package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/relay/internal/cache"
	"github.com/Additional-Code/relay/internal/config"
	"github.com/Additional-Code/relay/internal/database"
	"github.com/Additional-Code/relay/internal/delivery"
	"github.com/Additional-Code/relay/internal/logger"
	"github.com/Additional-Code/relay/internal/messaging"
	"github.com/Additional-Code/relay/internal/migration"
	"github.com/Additional-Code/relay/internal/observability"
	repositorycounter "github.com/Additional-Code/relay/internal/repository/counter"
	repositoryorder "github.com/Additional-Code/relay/internal/repository/order"
	repositoryseller "github.com/Additional-Code/relay/internal/repository/seller"
	grpcserver "github.com/Additional-Code/relay/internal/server/grpc"
	httpserver "github.com/Additional-Code/relay/internal/server/http"
	"github.com/Additional-Code/relay/internal/service/events"
	serviceorder "github.com/Additional-Code/relay/internal/service/order"
	"github.com/Additional-Code/relay/internal/service/ordernumber"
	"github.com/Additional-Code/relay/internal/service/relay"
	serviceseller "github.com/Additional-Code/relay/internal/service/seller"
	transporthttp "github.com/Additional-Code/relay/internal/transport/http"
	"github.com/Additional-Code/relay/internal/worker"
	workerorder "github.com/Additional-Code/relay/internal/worker/order"
)

// Storage is the minimal graph for maintenance commands (migrate, seed).
var Storage = fx.Options(
	config.Module,
	logger.Module,
	database.Module,
	repositorycounter.Module,
	repositoryorder.Module,
	repositoryseller.Module,
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	Storage,
	migration.Module,
	fx.Invoke(migration.AutoMigrate),
	cache.Module,
	messaging.Module,
	observability.Module,
	delivery.Module,
	events.Module,
	ordernumber.Module,
	serviceseller.Module,
	serviceorder.Module,
	relay.Module,
)

// HTTP wires the HTTP and gRPC servers on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background intake processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring.
var Module = HTTP
