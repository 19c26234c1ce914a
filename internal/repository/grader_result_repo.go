package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gradehub-go-api/internal/models"
)

// GraderResultRepository persists ingested feedback. Results are write-once;
// creation of result, outputs and test rows is one atomic unit.
type GraderResultRepository interface {
	Create(ctx context.Context, result *models.GraderResult, outputs []models.GraderResultOutput, tests []models.GraderResultTest) error
	ExistsForSubmission(ctx context.Context, submissionID uint) (bool, error)
}

type graderResultRepository struct {
	db *gorm.DB
}

// NewGraderResultRepository instantiates the repository.
func NewGraderResultRepository(db *gorm.DB) GraderResultRepository {
	return &graderResultRepository{db: db}
}

func (r *graderResultRepository) Create(ctx context.Context, result *models.GraderResult, outputs []models.GraderResultOutput, tests []models.GraderResultTest) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(result).Error; err != nil {
			return err
		}

		for i := range outputs {
			outputs[i].GraderResultID = result.ID
		}
		if len(outputs) > 0 {
			if err := tx.Create(&outputs).Error; err != nil {
				return err
			}
		}

		for i := range tests {
			tests[i].GraderResultID = result.ID
		}
		if len(tests) > 0 {
			if err := tx.Create(&tests).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *graderResultRepository) ExistsForSubmission(ctx context.Context, submissionID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.GraderResult{}).
		Where("submission_id = ?", submissionID).
		Count(&count).Error; err != nil {
		return false, err
	}

	return count > 0, nil
}
