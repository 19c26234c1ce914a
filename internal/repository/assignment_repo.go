package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gradehub-go-api/internal/models"
)

// AssignmentRepository reads the assignment definitions and grading contracts
// the pipeline depends on. Both are owned by instructor setup and read-only
// here.
type AssignmentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
	GetGraderConfig(ctx context.Context, assignmentID uint) (models.AssignmentGraderConfig, error)
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates the repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.WithContext(ctx).First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

func (r *assignmentRepository) GetGraderConfig(ctx context.Context, assignmentID uint) (models.AssignmentGraderConfig, error) {
	var config models.AssignmentGraderConfig
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		First(&config).Error; err != nil {
		return models.AssignmentGraderConfig{}, err
	}

	return config, nil
}
