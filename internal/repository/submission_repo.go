package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gradehub-go-api/internal/models"
)

// SubmissionRepository persists submissions and their extracted files.
type SubmissionRepository interface {
	// CreateWithFiles inserts the submission and its file batch atomically.
	// A gorm.ErrDuplicatedKey result means the CI identity tuple was already
	// recorded; nothing is written in that case.
	CreateWithFiles(ctx context.Context, submission *models.Submission, files []models.SubmissionFile) error
	GetByCIIdentity(ctx context.Context, repository, sha string, runNumber, runAttempt int64) (models.Submission, error)
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) CreateWithFiles(ctx context.Context, submission *models.Submission, files []models.SubmissionFile) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(submission).Error; err != nil {
			return err
		}

		for i := range files {
			files[i].SubmissionID = submission.ID
		}

		if len(files) > 0 {
			if err := tx.Create(&files).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *submissionRepository) GetByCIIdentity(ctx context.Context, repository, sha string, runNumber, runAttempt int64) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Where("repository = ?", repository).
		Where("sha = ?", sha).
		Where("run_number = ?", runNumber).
		Where("run_attempt = ?", runAttempt).
		First(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}
