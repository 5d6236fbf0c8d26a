package ports

import (
	"context"

	"github.com/atvirokodosprendimai/shopfloor/internal/core/domain"
)

type ChangePublisher interface {
	Publish(ctx context.Context, event domain.ChangeEvent) error
}
