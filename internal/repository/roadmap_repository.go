package repository

import (
	"careermap_backend/internal/model"
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoadmapRepository struct {
	DB *gorm.DB
}

func NewRoadmapRepository(db *gorm.DB) *RoadmapRepository {
	return &RoadmapRepository{DB: db}
}

func (r *RoadmapRepository) FindByUserAndAssessment(ctx context.Context, userID, assessmentID uint) (*model.Roadmap, error) {
	var rm model.Roadmap
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
		First(&rm).Error
	if err != nil {
		return nil, err
	}
	return &rm, nil
}

// CreateIfAbsent 依赖 (user_id, assessment_id) 唯一键；并发请求只有一个能插入成功
func (r *RoadmapRepository) CreateIfAbsent(ctx context.Context, rm *model.Roadmap) (bool, error) {
	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rm)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *RoadmapRepository) DeleteByUserAndAssessment(ctx context.Context, userID, assessmentID uint) error {
	return r.DB.WithContext(ctx).
		Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
		Delete(&model.Roadmap{}).Error
}

// DeleteFailed 只删除仍处于 failed 的记录，并发请求已重建的记录不受影响
func (r *RoadmapRepository) DeleteFailed(ctx context.Context, id uint) (bool, error) {
	res := r.DB.WithContext(ctx).
		Where("id = ? AND status = ?", id, model.RoadmapFailed).
		Delete(&model.Roadmap{})
	return res.RowsAffected == 1, res.Error
}

// DeleteByJobID 入队失败时回滚刚创建的记录
func (r *RoadmapRepository) DeleteByJobID(ctx context.Context, id uint, jobID string) error {
	return r.DB.WithContext(ctx).
		Where("id = ? AND job_id = ?", id, jobID).
		Delete(&model.Roadmap{}).Error
}

// MarkCompleted 仅当记录仍属于该任务且处于 generating 时写入，返回是否写入
func (r *RoadmapRepository) MarkCompleted(ctx context.Context, userID, assessmentID uint, jobID, advice, content string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.Roadmap{}).
		Where("user_id = ? AND assessment_id = ? AND job_id = ? AND status = ?",
			userID, assessmentID, jobID, model.RoadmapGenerating).
		Updates(map[string]interface{}{
			"status":          model.RoadmapCompleted,
			"career_advice":   advice,
			"roadmap_content": content,
			"updated_at":      time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *RoadmapRepository) MarkFailed(ctx context.Context, userID, assessmentID uint, jobID string) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.Roadmap{}).
		Where("user_id = ? AND assessment_id = ? AND job_id = ? AND status = ?",
			userID, assessmentID, jobID, model.RoadmapGenerating).
		Updates(map[string]interface{}{
			"status":     model.RoadmapFailed,
			"updated_at": time.Now(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *RoadmapRepository) UpdateProgress(ctx context.Context, id uint, p model.RoadmapProgress) error {
	return r.DB.WithContext(ctx).Model(&model.Roadmap{}).
		Where("id = ? AND status = ?", id, model.RoadmapCompleted).
		Updates(map[string]interface{}{
			"progress":   datatypes.NewJSONType(p),
			"updated_at": time.Now(),
		}).Error
}
