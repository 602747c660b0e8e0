package repository

import (
	"careermap_backend/internal/model"
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResourceRepository struct {
	DB *gorm.DB
}

func NewResourceRepository(db *gorm.DB) *ResourceRepository {
	return &ResourceRepository{DB: db}
}

func (r *ResourceRepository) withSkills(db *gorm.DB) *gorm.DB {
	return db.Preload("SkillRows", func(db *gorm.DB) *gorm.DB {
		return db.Order("position asc")
	})
}

// InsertIfAbsent 按 url 插入，已存在时什么也不做（不会覆盖人工整理的数据）。
// 资源行与技能行在同一事务内写入
func (r *ResourceRepository) InsertIfAbsent(ctx context.Context, res *model.Resource) (bool, error) {
	res.Normalize()
	inserted := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Omit(clause.Associations).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "url"}}, DoNothing: true}).
			Create(res)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		inserted = true
		if len(res.Skills) == 0 {
			return nil
		}
		rows := make([]model.ResourceSkill, 0, len(res.Skills))
		for i, s := range res.Skills {
			rows = append(rows, model.ResourceSkill{ResourceID: res.ID, Skill: s, Position: i})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (r *ResourceRepository) FindByURL(ctx context.Context, url string) (*model.Resource, error) {
	var res model.Resource
	if err := r.withSkills(r.DB.WithContext(ctx)).Where("url = ?", url).First(&res).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

// FindByIDs 按传入 id 的顺序返回，缺失的 id 跳过
func (r *ResourceRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.Resource, error) {
	if len(ids) == 0 {
		return []model.Resource{}, nil
	}
	var found []model.Resource
	if err := r.withSkills(r.DB.WithContext(ctx)).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]model.Resource, len(found))
	for _, res := range found {
		byID[res.ID] = res
	}
	out := make([]model.Resource, 0, len(found))
	for _, id := range ids {
		if res, ok := byID[id]; ok {
			out = append(out, res)
		}
	}
	return out, nil
}

// FindBySkills 技能交集匹配（不区分大小写），按评分、创建时间倒序
func (r *ResourceRepository) FindBySkills(ctx context.Context, skills []string, excludeIDs []uint, limit int) ([]model.Resource, error) {
	skills = model.NormalizeSkills(skills)
	if len(skills) == 0 {
		return []model.Resource{}, nil
	}
	query := r.withSkills(r.DB.WithContext(ctx)).
		Where("id IN (?)", r.DB.Model(&model.ResourceSkill{}).Select("resource_id").Where("skill IN ?", skills))
	if len(excludeIDs) > 0 {
		query = query.Where("id NOT IN ?", excludeIDs)
	}
	var out []model.Resource
	err := query.Order("rating desc, created_at desc, id asc").Limit(limit).Find(&out).Error
	return out, err
}

func (r *ResourceRepository) ListByType(ctx context.Context, resourceType model.ResourceType, skills []string, limit int) ([]model.Resource, error) {
	query := r.withSkills(r.DB.WithContext(ctx))
	if resourceType != "" {
		query = query.Where("type = ?", resourceType)
	}
	if skills = model.NormalizeSkills(skills); len(skills) > 0 {
		query = query.Where("id IN (?)", r.DB.Model(&model.ResourceSkill{}).Select("resource_id").Where("skill IN ?", skills))
	}
	var out []model.Resource
	err := query.Order("rating desc, created_at desc, id asc").Limit(limit).Find(&out).Error
	return out, err
}

// ListAfter 按 id 游标分页，用于重建向量索引
func (r *ResourceRepository) ListAfter(ctx context.Context, afterID uint, batch int) ([]model.Resource, error) {
	var out []model.Resource
	err := r.withSkills(r.DB.WithContext(ctx)).
		Where("id > ?", afterID).
		Order("id asc").
		Limit(batch).
		Find(&out).Error
	return out, err
}

func (r *ResourceRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&model.Resource{}).Count(&n).Error
	return n, err
}
