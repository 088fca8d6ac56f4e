package files

import (
	"context"

	"github.com/vkarpenko/filevault/internal/server/models"
)

// Visibility describes which files a listing should include for a caller.
// Listing is deliberately coarser than decryptability: a visible file is not
// necessarily decryptable by the viewer.
type Visibility struct {
	// PrincipalID always includes the caller's own files and files shared
	// with them.
	PrincipalID string
	// All is set for administrators, who see every file.
	All bool
	// Department, when non-empty, additionally includes files of that
	// department (staff viewers).
	Department string
	// Search optionally filters by substring of the display name or a label.
	Search string
}

type Repository interface {
	Create(ctx context.Context, f *models.EncryptedFile) (*models.EncryptedFile, error)
	GetByID(ctx context.Context, id string) (*models.EncryptedFile, error)
	ListVisible(ctx context.Context, v Visibility) ([]*models.EncryptedFile, error)
	Delete(ctx context.Context, id string) error
}
