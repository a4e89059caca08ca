package delivery

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log. Local runs only.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("delivery")}
}

func (l *LogNotifier) Send(_ context.Context, n Notification) error {
	fields := []zap.Field{
		zap.Int64("recipient", n.Recipient),
		zap.String("kind", string(n.Kind)),
		zap.String("order_number", n.OrderNumber),
		zap.String("text", n.Text),
	}
	if n.Action != nil {
		fields = append(fields, zap.String("action", n.Action.Kind))
	}
	l.logger.Info("notification", fields...)
	return nil
}

func (l *LogNotifier) RetractAction(_ context.Context, recipient int64, ref ActionRef) error {
	l.logger.Info("action retracted",
		zap.Int64("recipient", recipient),
		zap.String("action", ref.Kind),
		zap.String("order_number", ref.OrderNumber),
		zap.String("message_ref", ref.MessageRef),
	)
	return nil
}
