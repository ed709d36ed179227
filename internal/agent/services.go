package agent

import (
	"context"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// ConversationService persists conversations. Last writer wins per
// conversation id; the turn loop is the only writer while it runs. The
// concrete stores live in internal/storage.
type ConversationService interface {
	Upsert(ctx context.Context, conv *models.Conversation) error
	Get(ctx context.Context, id string) (*models.Conversation, error)
}
