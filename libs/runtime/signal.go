package runtime

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ShutdownStep is one component to stop once the signal context is done.
type ShutdownStep struct {
	Name string
	Stop func(context.Context) error
}

// Shutdown runs steps in order under a shared deadline. Every step runs even when an earlier
// one fails; the failures are joined.
func Shutdown(logger *slog.Logger, timeout time.Duration, steps ...ShutdownStep) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, s := range steps {
		if err := s.Stop(ctx); err != nil {
			logger.Error("shutdown step failed", "step", s.Name, "err", err)
			errs = append(errs, err)
			continue
		}
		logger.Info("stopped", "step", s.Name)
	}
	return errors.Join(errs...)
}
