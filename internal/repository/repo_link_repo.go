package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gradehub-go-api/internal/models"
)

// RepoLinkRepository resolves an inbound repository claim to the owning
// user/assignment pairing. A claim with no link is the trust boundary the
// intake pipeline rejects on.
type RepoLinkRepository interface {
	GetByFullName(ctx context.Context, fullName string) (models.Repository, error)
}

type repoLinkRepository struct {
	db *gorm.DB
}

// NewRepoLinkRepository instantiates the repository.
func NewRepoLinkRepository(db *gorm.DB) RepoLinkRepository {
	return &repoLinkRepository{db: db}
}

func (r *repoLinkRepository) GetByFullName(ctx context.Context, fullName string) (models.Repository, error) {
	var link models.Repository
	if err := r.db.WithContext(ctx).
		Where("repository_full_name = ?", fullName).
		First(&link).Error; err != nil {
		return models.Repository{}, err
	}

	return link, nil
}
