package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"deploy-orchestrator/internal/api/middleware"
	"deploy-orchestrator/internal/dto"
	"deploy-orchestrator/internal/pkg/logger"
	"deploy-orchestrator/internal/service"
	"deploy-orchestrator/pkg/responses"
	"deploy-orchestrator/pkg/utils"
)

// DeploymentHandler 发布单处理器
type DeploymentHandler struct {
	deploymentService service.DeploymentService
	recordService     service.RecordService
}

// NewDeploymentHandler 创建发布单处理器
func NewDeploymentHandler(deploymentService service.DeploymentService, recordService service.RecordService) *DeploymentHandler {
	return &DeploymentHandler{
		deploymentService: deploymentService,
		recordService:     recordService,
	}
}

// Submit 提交发布请求
// @Summary 提交发布请求
// @Description 受理一次发布并同步执行到终态, 响应即最终结果。同一目标同时只允许一次在途发布, 冲突的请求被直接拒绝不排队。
// @Tags 发布管理
// @Accept json
// @Produce json
// @Param request body dto.SubmitDeploymentRequest true "发布请求"
// @Success 200 {object} dto.DeploymentOutcome
// @Security BearerAuth
// @Router /api/v1/deployments [post]
func (h *DeploymentHandler) Submit(c *gin.Context) {
	var req dto.SubmitDeploymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, 400, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	initiator := middleware.AccountFrom(c)
	outcome, err := h.deploymentService.Submit(c.Request.Context(), initiator, &req)
	if err != nil {
		logger.Error("发布请求未被受理或执行异常",
			zap.String("request_id", req.RequestID),
			zap.String("initiator", initiator),
			zap.Error(err))
		responses.Error(c, err)
		return
	}

	responses.Success(c, outcome)
}

// List 发布单列表
// @Summary 发布单列表
// @Description 分页查询历史发布单, 支持状态/策略/发起账号过滤
// @Tags 发布管理
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param statuses query []string false "状态过滤" collectionFormat(multi)
// @Param strategy query string false "策略过滤"
// @Param initiator query string false "发起账号过滤"
// @Success 200 {object} dto.PageResponse
// @Security BearerAuth
// @Router /api/v1/deployments [get]
func (h *DeploymentHandler) List(c *gin.Context) {
	var param dto.DeploymentListParam
	if err := c.ShouldBindQuery(&param); err != nil {
		responses.ErrorWithDetail(c, 400, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	page, err := h.deploymentService.List(param)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, page)
}

// Get 发布单详情
// @Summary 发布单详情
// @Description 按请求标识查询发布单, 终态请求包含逐目标结果
// @Tags 发布管理
// @Produce json
// @Param request_id path string true "请求标识"
// @Success 200 {object} dto.DeploymentOutcome
// @Security BearerAuth
// @Router /api/v1/deployments/{request_id} [get]
func (h *DeploymentHandler) Get(c *gin.Context) {
	requestID := c.Param("request_id")
	if requestID == "" {
		responses.ErrorWithCode(c, 400, "缺少请求标识")
		return
	}

	outcome, err := h.deploymentService.GetByRequestID(requestID)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, outcome)
}

// GetRecords 发布单的全部发布记录
// @Summary 发布单的发布记录
// @Description 一次发布产生的全部目标级记录, 按发生顺序返回
// @Tags 发布管理
// @Produce json
// @Param request_id path string true "请求标识"
// @Success 200 {array} dto.RecordInfo
// @Security BearerAuth
// @Router /api/v1/deployments/{request_id}/records [get]
func (h *DeploymentHandler) GetRecords(c *gin.Context) {
	requestID := c.Param("request_id")
	if requestID == "" {
		responses.ErrorWithCode(c, 400, "缺少请求标识")
		return
	}

	records, err := h.recordService.ListByRequest(requestID)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, records)
}
