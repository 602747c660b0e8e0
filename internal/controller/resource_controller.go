package controller

import (
	"careermap_backend/internal/service"
	"careermap_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type ResourceController struct {
	Service *service.ResourceService
}

func NewResourceController(svc *service.ResourceService) *ResourceController {
	return &ResourceController{Service: svc}
}

// @Summary 检索学习资源
// @Description 按技能或自然语言检索，本地结果不足时补充外部视频
// @Tags 学习资源
// @Produce json
// @Security BearerAuth
// @Param skills query string false "逗号分隔的技能"
// @Param q query string false "检索语句"
// @Success 200 {object} util.Response
// @Router /api/resources [get]
func (c *ResourceController) Search(ctx *gin.Context) {
	req := service.SearchRequest{
		Skills: util.SplitCSV(ctx.Query("skills")),
		Query:  ctx.Query("q"),
	}
	if len(req.Skills) == 0 && req.Query == "" {
		util.BadRequest(ctx, "skills or q is required")
		return
	}
	res, err := c.Service.Search(ctx.Request.Context(), req)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 按类型列出学习资源
// @Tags 学习资源
// @Produce json
// @Security BearerAuth
// @Param type query string false "资源类型"
// @Param skills query string false "逗号分隔的技能"
// @Success 200 {object} util.Response
// @Failure 400 {object} util.Response
// @Router /api/resources/by-type [get]
func (c *ResourceController) ByType(ctx *gin.Context) {
	res, err := c.Service.ByType(ctx.Request.Context(), ctx.Query("type"), util.SplitCSV(ctx.Query("skills")))
	if err != nil {
		if errors.Is(err, util.ErrInvalidResourceType) {
			util.BadRequest(ctx, err.Error())
			return
		}
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"resources": res.Resources, "count": res.Count})
}
