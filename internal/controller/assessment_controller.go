package controller

import (
	"careermap_backend/internal/service"
	"careermap_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type AssessmentController struct {
	Service *service.AssessmentService
}

func NewAssessmentController(svc *service.AssessmentService) *AssessmentController {
	return &AssessmentController{Service: svc}
}

func (c *AssessmentController) handleError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrAssessmentNotFound):
		util.NotFoundWithMessage(ctx, "Assessment not found")
	case errors.Is(err, util.ErrInvalidAssessment):
		util.BadRequest(ctx, err.Error())
	default:
		util.LogInternalError(ctx, err)
	}
}

// @Summary 创建职业评估
// @Tags 职业评估
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.AssessmentRequest true "评估信息"
// @Success 201 {object} util.Response
// @Failure 400 {object} util.Response
// @Router /api/assessment [post]
func (c *AssessmentController) Create(ctx *gin.Context) {
	var req service.AssessmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	a, err := c.Service.Create(ctx.Request.Context(), ctx.GetUint("user_id"), req)
	if err != nil {
		c.handleError(ctx, err)
		return
	}
	util.Created(ctx, a)
}

// @Summary 获取我的评估列表
// @Tags 职业评估
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/assessment [get]
func (c *AssessmentController) List(ctx *gin.Context) {
	list, err := c.Service.List(ctx.Request.Context(), ctx.GetUint("user_id"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// @Summary 获取评估详情
// @Tags 职业评估
// @Produce json
// @Security BearerAuth
// @Param id path int true "评估ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/assessment/{id} [get]
func (c *AssessmentController) Get(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))
	if id == 0 {
		util.BadRequest(ctx, "invalid id")
		return
	}
	a, err := c.Service.Get(ctx.Request.Context(), ctx.GetUint("user_id"), id)
	if err != nil {
		c.handleError(ctx, err)
		return
	}
	util.Success(ctx, a)
}

// @Summary 整体替换评估
// @Tags 职业评估
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "评估ID"
// @Param body body service.AssessmentRequest true "评估信息"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/assessment/{id} [put]
func (c *AssessmentController) Replace(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))
	if id == 0 {
		util.BadRequest(ctx, "invalid id")
		return
	}
	var req service.AssessmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	a, err := c.Service.Replace(ctx.Request.Context(), ctx.GetUint("user_id"), id, req)
	if err != nil {
		c.handleError(ctx, err)
		return
	}
	util.Success(ctx, a)
}

// @Summary 删除评估
// @Description 同时删除该评估生成的路线图
// @Tags 职业评估
// @Produce json
// @Security BearerAuth
// @Param id path int true "评估ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/assessment/{id} [delete]
func (c *AssessmentController) Delete(ctx *gin.Context) {
	id := util.MustParseUint(ctx.Param("id"))
	if id == 0 {
		util.BadRequest(ctx, "invalid id")
		return
	}
	if err := c.Service.Delete(ctx.Request.Context(), ctx.GetUint("user_id"), id); err != nil {
		c.handleError(ctx, err)
		return
	}
	util.SuccessWithMessage(ctx, "Assessment deleted", nil)
}
