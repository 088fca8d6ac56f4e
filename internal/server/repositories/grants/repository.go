package grants

import (
	"context"

	"github.com/vkarpenko/filevault/internal/server/models"
)

// Repository is the recipient key store: durable wrapped-key records keyed
// by (file, recipient). Upsert is idempotent: re-granting overwrites the
// wrapped key rather than erroring or duplicating, and the overwrite is
// atomic at the storage layer (last writer wins).
type Repository interface {
	Upsert(ctx context.Context, g *models.ShareGrant) error
	Get(ctx context.Context, fileID, recipientID string) (*models.ShareGrant, error)
	ListForFile(ctx context.Context, fileID string) ([]*models.ShareGrant, error)
}
