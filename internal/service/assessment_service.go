package service

import (
	"careermap_backend/internal/model"
	"careermap_backend/internal/repository"
	"careermap_backend/internal/util"
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AssessmentService struct {
	Repo *repository.AssessmentRepository
}

func NewAssessmentService(repo *repository.AssessmentRepository) *AssessmentService {
	return &AssessmentService{Repo: repo}
}

// AssessmentRequest 创建与整体替换共用
type AssessmentRequest struct {
	CurrentRole            string              `json:"currentRole"`
	YearsOfExperience      int                 `json:"yearsOfExperience"`
	TargetRole             string              `json:"targetRole" binding:"required"`
	Skills                 []string            `json:"skills"`
	Interests              []string            `json:"interests"`
	EducationLevel         string              `json:"educationLevel"`
	PreferredLearningStyle model.LearningStyle `json:"preferredLearningStyle"`
	TimeCommitment         string              `json:"timeCommitment"`
}

func (r AssessmentRequest) validate() error {
	if strings.TrimSpace(r.TargetRole) == "" {
		return fmt.Errorf("%w: targetRole is required", util.ErrInvalidAssessment)
	}
	if r.YearsOfExperience < 0 {
		return fmt.Errorf("%w: yearsOfExperience must not be negative", util.ErrInvalidAssessment)
	}
	if !r.PreferredLearningStyle.Valid() {
		return fmt.Errorf("%w: unknown learning style %q", util.ErrInvalidAssessment, r.PreferredLearningStyle)
	}
	return nil
}

func (r AssessmentRequest) apply(a *model.Assessment) {
	a.CurrentRole = strings.TrimSpace(r.CurrentRole)
	a.YearsOfExperience = r.YearsOfExperience
	a.TargetRole = strings.TrimSpace(r.TargetRole)
	a.Skills = datatypes.JSONSlice[string](cleanStrings(r.Skills))
	a.Interests = datatypes.JSONSlice[string](cleanStrings(r.Interests))
	a.EducationLevel = strings.TrimSpace(r.EducationLevel)
	a.PreferredLearningStyle = r.PreferredLearningStyle
	a.TimeCommitment = strings.TrimSpace(r.TimeCommitment)
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (s *AssessmentService) Create(ctx context.Context, userID uint, req AssessmentRequest) (*model.Assessment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	a := &model.Assessment{UserID: userID}
	req.apply(a)
	if err := s.Repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AssessmentService) Get(ctx context.Context, userID, id uint) (*model.Assessment, error) {
	a, err := s.Repo.FindByIDForUser(ctx, id, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrAssessmentNotFound
	}
	return a, err
}

func (s *AssessmentService) List(ctx context.Context, userID uint) ([]model.Assessment, error) {
	list, err := s.Repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Assessment{}
	}
	return list, nil
}

// Replace 整体替换，已生成的路线图不受影响，需要时由用户重新生成
func (s *AssessmentService) Replace(ctx context.Context, userID, id uint, req AssessmentRequest) (*model.Assessment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	a, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	req.apply(a)
	if err := s.Repo.Replace(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete 同时删除对应的路线图
func (s *AssessmentService) Delete(ctx context.Context, userID, id uint) error {
	err := s.Repo.DeleteWithRoadmap(ctx, id, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrAssessmentNotFound
	}
	return err
}
