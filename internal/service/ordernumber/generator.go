package ordernumber

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/relay/internal/config"
	"github.com/Additional-Code/relay/internal/repository/counter"
)

var tracer = otel.Tracer("github.com/Additional-Code/relay/service/ordernumber")

// Module provides the order number generator to Fx.
var Module = fx.Provide(
	func(repo *counter.Repository) Sequence { return repo },
	NewGenerator,
)

// Sequence issues strictly increasing values per key.
type Sequence interface {
	Increment(ctx context.Context, key string) (int64, error)
}

// Generator turns a seller display name into the next order number, e.g. "E2".
type Generator struct {
	seq      Sequence
	fallback string
}

// NewGenerator wires a Generator. Keys derived from names without a leading
// letter fall back to cfg.Relay.FallbackPrefix.
func NewGenerator(seq Sequence, cfg config.Config) *Generator {
	fallback := cfg.Relay.FallbackPrefix
	if fallback == "" {
		fallback = "X"
	}
	return &Generator{seq: seq, fallback: fallback}
}

// Next returns "<Key><Value>" where Key is the upper-cased first letter of
// prefixSource. Numbers are never handed out twice for the same key.
func (g *Generator) Next(ctx context.Context, prefixSource string) (string, error) {
	key := g.Key(prefixSource)
	ctx, span := tracer.Start(ctx, "OrderNumber.Next", trace.WithAttributes(attribute.String("order_number.key", key)))
	defer span.End()

	value, err := g.seq.Increment(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "increment failed")
		return "", fmt.Errorf("next order number for %q: %w", key, err)
	}

	number := Format(key, value)
	span.SetAttributes(attribute.String("order.number", number))
	return number, nil
}

// Key derives the counter key from a display name.
func (g *Generator) Key(prefixSource string) string {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(prefixSource))
	if r == utf8.RuneError || !unicode.IsLetter(r) {
		return g.fallback
	}
	return string(unicode.ToUpper(r))
}

// Format renders an order number from its parts.
func Format(key string, value int64) string {
	return fmt.Sprintf("%s%d", key, value)
}

// Normalize upper-cases an order number received from a participant.
func Normalize(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}
