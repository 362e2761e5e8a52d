package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/semmidev/dockdump/internal/domain"
)

// Multi fans an event out to every configured notifier.
type Multi struct {
	notifiers []domain.Notifier
}

func NewMulti(notifiers ...domain.Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) Len() int {
	if m == nil {
		return 0
	}
	return len(m.notifiers)
}

func (m *Multi) Notify(ctx context.Context, event domain.Event) error {
	if m.Len() == 0 {
		return nil
	}

	var errs []error
	for i, n := range m.notifiers {
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("notifier %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
