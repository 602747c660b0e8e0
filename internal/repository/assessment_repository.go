package repository

import (
	"careermap_backend/internal/model"
	"context"

	"gorm.io/gorm"
)

type AssessmentRepository struct {
	DB *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: db}
}

func (r *AssessmentRepository) Create(ctx context.Context, a *model.Assessment) error {
	return r.DB.WithContext(ctx).Create(a).Error
}

// FindByIDForUser 只返回属于该用户的评估，不存在时返回 gorm.ErrRecordNotFound
func (r *AssessmentRepository) FindByIDForUser(ctx context.Context, id, userID uint) (*model.Assessment, error) {
	var a model.Assessment
	err := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AssessmentRepository) ListByUser(ctx context.Context, userID uint) ([]model.Assessment, error) {
	var list []model.Assessment
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Find(&list).Error
	return list, err
}

// Replace 整体覆盖可编辑字段
func (r *AssessmentRepository) Replace(ctx context.Context, a *model.Assessment) error {
	return r.DB.WithContext(ctx).Model(a).
		Select("current_role", "years_of_experience", "target_role", "skills", "interests",
			"education_level", "preferred_learning_style", "time_commitment").
		Updates(a).Error
}

// DeleteWithRoadmap 删除评估并在同一事务内删除其路线图
func (r *AssessmentRepository) DeleteWithRoadmap(ctx context.Context, id, userID uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&model.Assessment{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("assessment_id = ? AND user_id = ?", id, userID).Delete(&model.Roadmap{}).Error
	})
}
