package controller

import (
	"careermap_backend/internal/service"
	"careermap_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type RoadmapController struct {
	Service *service.RoadmapService
}

func NewRoadmapController(svc *service.RoadmapService) *RoadmapController {
	return &RoadmapController{Service: svc}
}

type GenerateRoadmapRequest struct {
	AssessmentID uint `json:"assessmentId" binding:"required"`
}

func (c *RoadmapController) handleError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrAssessmentNotFound):
		util.NotFoundWithMessage(ctx, "Assessment not found")
	case errors.Is(err, util.ErrRoadmapNotFound):
		util.NotFoundWithMessage(ctx, "Roadmap not found")
	case errors.Is(err, util.ErrJobNotFound):
		util.NotFoundWithMessage(ctx, "Job not found")
	case errors.Is(err, util.ErrRoadmapNotReady):
		util.Conflict(ctx, "Roadmap is not completed yet")
	case errors.Is(err, util.ErrInvalidProgress):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrQueueUnavailable):
		util.ServiceUnavailable(ctx, "Roadmap generation is temporarily unavailable, please retry")
	default:
		util.LogInternalError(ctx, err)
	}
}

func (c *RoadmapController) respondGenerate(ctx *gin.Context, res *service.GenerateResult) {
	data := gin.H{"jobId": res.JobID, "roadmap": res.Roadmap.View()}
	if res.Enqueued {
		util.Accepted(ctx, res.Message, data)
		return
	}
	util.SuccessWithMessage(ctx, res.Message, data)
}

// @Summary 生成学习路线图
// @Description 异步生成；已存在生成中或已完成的路线图时直接返回
// @Tags 路线图
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body GenerateRoadmapRequest true "评估ID"
// @Success 202 {object} util.Response
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/roadmap/generate [post]
func (c *RoadmapController) Generate(ctx *gin.Context) {
	var req GenerateRoadmapRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	res, err := c.Service.Generate(ctx.Request.Context(), ctx.GetUint("user_id"), req.AssessmentID)
	if err != nil {
		c.handleError(ctx, err)
		return
	}
	c.respondGenerate(ctx, res)
}

// @Summary 重新生成学习路线图
// @Tags 路线图
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body GenerateRoadmapRequest true "评估ID"
// @Success 202 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/roadmap/regenerate [post]
func (c *RoadmapController) Regenerate(ctx *gin.Context) {
	var req GenerateRoadmapRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	res, err := c.Service.Regenerate(ctx.Request.Context(), ctx.GetUint("user_id"), req.AssessmentID)
	if err != nil {
		c.handleError(ctx, err)
		return
	}
	c.respondGenerate(ctx, res)
}

// @Summary 获取学习路线图
// @Tags 路线图
// @Produce json
// @Security BearerAuth
// @Param assessmentId query int true "评估ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/roadmap [get]
func (c *RoadmapController) Get(ctx *gin.Context) {
	assessmentID := util.MustParseUint(ctx.Query("assessmentId"))
	if assessmentID == 0 {
		util.BadRequest(ctx, "assessmentId is required")
		return
	}
	rm, err := c.Service.Get(ctx.Request.Context(), ctx.GetUint("user_id"), assessmentID)
	if err != nil {
		c.handleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"roadmap": rm.View()})
}

// @Summary 查询生成任务状态
// @Tags 路线图
// @Produce json
// @Security BearerAuth
// @Param jobId path string true "任务ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/roadmap/job/{jobId} [get]
func (c *RoadmapController) JobStatus(ctx *gin.Context) {
	job, err := c.Service.JobStatus(ctx.Request.Context(), ctx.GetUint("user_id"), ctx.Param("jobId"))
	if err != nil {
		c.handleError(ctx, err)
		return
	}
	util.Success(ctx, job)
}

// @Summary 更新学习进度
// @Description 整体覆盖；越界的任务索引会被丢弃
// @Tags 路线图
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.ProgressRequest true "进度"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/roadmap/progress [put]
func (c *RoadmapController) UpdateProgress(ctx *gin.Context) {
	var req service.ProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	rm, err := c.Service.UpdateProgress(ctx.Request.Context(), ctx.GetUint("user_id"), req)
	if err != nil {
		c.handleError(ctx, err)
		return
	}
	util.SuccessWithMessage(ctx, "Progress updated", gin.H{"roadmap": rm.View()})
}
