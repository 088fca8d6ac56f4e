package principals

import (
	"context"

	"github.com/vkarpenko/filevault/internal/server/models"
)

// Repository is the principal directory: account records plus key lookup.
// PublicKeyOf returns common.ErrorNotFound for absent principals or
// principals without a keypair.
type Repository interface {
	Create(ctx context.Context, p *models.Principal) (*models.Principal, error)
	GetByID(ctx context.Context, id string) (*models.Principal, error)
	GetByEmail(ctx context.Context, email string) (*models.Principal, error)
	PublicKeyOf(ctx context.Context, id string) ([]byte, error)
	PrivateKeyOf(ctx context.Context, id string) ([]byte, error)
	SetKeyPair(ctx context.Context, id string, publicPEM, privatePEM []byte) error
	ListAdmins(ctx context.Context) ([]*models.Principal, error)
	Delete(ctx context.Context, id string) error
}
