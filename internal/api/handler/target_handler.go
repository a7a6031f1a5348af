package handler

import (
	"github.com/gin-gonic/gin"

	"deploy-orchestrator/internal/dto"
	"deploy-orchestrator/internal/service"
	"deploy-orchestrator/pkg/responses"
	"deploy-orchestrator/pkg/utils"
)

// TargetHandler 目标处理器
type TargetHandler struct {
	targetService service.TargetService
	recordService service.RecordService
}

// NewTargetHandler 创建目标处理器
func NewTargetHandler(targetService service.TargetService, recordService service.RecordService) *TargetHandler {
	return &TargetHandler{
		targetService: targetService,
		recordService: recordService,
	}
}

// List 目标列表
// @Summary 目标列表
// @Description 分页查询部署目标, 支持分组/池/流量状态过滤
// @Tags 目标管理
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param group query string false "分组过滤"
// @Param pool query string false "池过滤(blue/green)"
// @Param routing_state query string false "流量状态过滤"
// @Param status query int false "在役状态过滤(1在役 0退役)"
// @Param keyword query string false "名称/地址模糊搜索"
// @Success 200 {object} dto.PageResponse
// @Security BearerAuth
// @Router /api/v1/targets [get]
func (h *TargetHandler) List(c *gin.Context) {
	var param dto.TargetListParam
	if err := c.ShouldBindQuery(&param); err != nil {
		responses.ErrorWithDetail(c, 400, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	page, err := h.targetService.List(param)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, page)
}

// Get 目标详情
// @Summary 目标详情
// @Tags 目标管理
// @Produce json
// @Param id path int true "目标ID"
// @Success 200 {object} dto.TargetInfo
// @Security BearerAuth
// @Router /api/v1/targets/{id} [get]
func (h *TargetHandler) Get(c *gin.Context) {
	var param dto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		responses.ErrorWithDetail(c, 400, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	info, err := h.targetService.GetByID(param.ID)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, info)
}

// Create 注册目标
// @Summary 注册目标
// @Description 手工注册一台部署目标; 机群通常由目标清单文件同步
// @Tags 目标管理
// @Accept json
// @Produce json
// @Param request body dto.CreateTargetRequest true "注册请求"
// @Success 200 {object} dto.TargetInfo
// @Security BearerAuth
// @Router /api/v1/targets [post]
func (h *TargetHandler) Create(c *gin.Context) {
	var req dto.CreateTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, 400, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	info, err := h.targetService.Create(&req)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, info)
}

// Update 更新目标
// @Summary 更新目标基础信息
// @Tags 目标管理
// @Accept json
// @Produce json
// @Param id path int true "目标ID"
// @Param request body dto.UpdateTargetRequest true "更新请求"
// @Success 200 {object} dto.TargetInfo
// @Security BearerAuth
// @Router /api/v1/targets/{id} [put]
func (h *TargetHandler) Update(c *gin.Context) {
	var param dto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		responses.ErrorWithDetail(c, 400, "请求参数错误", utils.FormatValidationError(err))
		return
	}
	var req dto.UpdateTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, 400, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	info, err := h.targetService.Update(param.ID, &req)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, info)
}

// UpdateRouting 调整目标流量状态
// @Summary 手工摘流/接流
// @Description 有未善后失败发布的目标不允许直接接流
// @Tags 目标管理
// @Accept json
// @Produce json
// @Param id path int true "目标ID"
// @Param request body dto.UpdateRoutingRequest true "流量状态"
// @Success 200 {object} dto.TargetInfo
// @Security BearerAuth
// @Router /api/v1/targets/{id}/routing [put]
func (h *TargetHandler) UpdateRouting(c *gin.Context) {
	var param dto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		responses.ErrorWithDetail(c, 400, "请求参数错误", utils.FormatValidationError(err))
		return
	}
	var req dto.UpdateRoutingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, 400, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	info, err := h.targetService.UpdateRouting(c.Request.Context(), param.ID, &req)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, info)
}

// Retire 退役目标
// @Summary 退役目标
// @Description 目标退出机群但保留行与发布历史, 有在途发布时拒绝
// @Tags 目标管理
// @Produce json
// @Param id path int true "目标ID"
// @Success 200 {object} responses.Response
// @Security BearerAuth
// @Router /api/v1/targets/{id} [delete]
func (h *TargetHandler) Retire(c *gin.Context) {
	var param dto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		responses.ErrorWithDetail(c, 400, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	if err := h.targetService.Retire(param.ID); err != nil {
		responses.Error(c, err)
		return
	}

	responses.SuccessWithMessage(c, "目标已退役", nil)
}

// GetRecords 目标的发布历史
// @Summary 目标的发布历史
// @Description 分页查询单目标的发布记录, 最新在前
// @Tags 目标管理
// @Produce json
// @Param id path int true "目标ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param outcome query string false "结果过滤"
// @Param since query string false "只看此时刻之后开始的记录, RFC3339"
// @Success 200 {object} dto.PageResponse
// @Security BearerAuth
// @Router /api/v1/targets/{id}/records [get]
func (h *TargetHandler) GetRecords(c *gin.Context) {
	var param dto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		responses.ErrorWithDetail(c, 400, "请求参数错误", utils.FormatValidationError(err))
		return
	}
	var listParam dto.RecordListParam
	if err := c.ShouldBindQuery(&listParam); err != nil {
		responses.ErrorWithDetail(c, 400, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	page, err := h.recordService.ListByTarget(param.ID, listParam)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, page)
}
