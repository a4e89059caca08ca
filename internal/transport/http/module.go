package http

import (
	"go.uber.org/fx"

	ordertransport "github.com/Additional-Code/relay/internal/transport/http/order"
	relaytransport "github.com/Additional-Code/relay/internal/transport/http/relay"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	relaytransport.Module,
)
