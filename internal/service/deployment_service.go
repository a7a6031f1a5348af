package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"deploy-orchestrator/internal/core"
	"deploy-orchestrator/internal/core/health"
	"deploy-orchestrator/internal/core/strategy"
	"deploy-orchestrator/internal/dto"
	"deploy-orchestrator/internal/model"
	"deploy-orchestrator/internal/pkg/config"
	"deploy-orchestrator/internal/registry"
	"deploy-orchestrator/internal/repository"
	pkgErrors "deploy-orchestrator/pkg/errors"
)

// 金丝雀参数缺省值, 请求未指定时生效
var defaultCanaryWeights = []int{10, 50}

const (
	defaultCanaryCount    = 1
	defaultWindowSamples  = 10
	defaultSampleInterval = 10 * time.Second
	defaultErrorThreshold = 5.0
)

// DeploymentService 发布单服务
//
// Submit 同步驱动发布到终态, 调用方拿到的响应就是终局结果。
type DeploymentService interface {
	Submit(ctx context.Context, initiator string, req *dto.SubmitDeploymentRequest) (*dto.DeploymentOutcome, error)
	List(param dto.DeploymentListParam) (*dto.PageResponse, error)
	GetByRequestID(requestID string) (*dto.DeploymentOutcome, error)
}

type deploymentService struct {
	engine      *core.Engine
	registry    *registry.Registry
	requestRepo *repository.RequestRepository
	cfg         *config.Config
}

// NewDeploymentService 创建发布单服务
func NewDeploymentService(engine *core.Engine, reg *registry.Registry, requestRepo *repository.RequestRepository, cfg *config.Config) DeploymentService {
	return &deploymentService{
		engine:      engine,
		registry:    reg,
		requestRepo: requestRepo,
		cfg:         cfg,
	}
}

// Submit 受理发布请求并执行到终态
func (s *deploymentService) Submit(ctx context.Context, initiator string, req *dto.SubmitDeploymentRequest) (*dto.DeploymentOutcome, error) {
	// 1. 解析目标集合
	targets, err := s.resolveTargets(req)
	if err != nil {
		return nil, err
	}

	// 2. 合成生效参数: 服务端默认值 + 请求覆盖项
	cfg, err := s.buildConfig(req.Config)
	if err != nil {
		return nil, err
	}

	// 3. 组装发布单, 幂等标识缺省由服务端生成
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	request := &model.DeploymentRequest{
		RequestID:   requestID,
		ArtifactRef: req.ArtifactRef,
		Version:     req.Version,
		Strategy:    req.Strategy,
		TargetGroup: req.TargetGroup,
		Initiator:   initiator,
	}
	if len(req.TargetIDs) > 0 {
		raw, merr := json.Marshal(req.TargetIDs)
		if merr != nil {
			return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "序列化目标列表失败", merr)
		}
		request.TargetIDs = datatypes.JSON(raw)
	}

	// 4. 交给引擎, 阻塞直到运行终态
	result, err := s.engine.Submit(ctx, request, targets, cfg)
	if err != nil {
		return nil, err
	}

	return &dto.DeploymentOutcome{
		DeploymentInfo: toDeploymentInfo(request),
		Targets:        toTargetOutcomes(result.Targets),
	}, nil
}

// List 分页查询发布单
func (s *deploymentService) List(param dto.DeploymentListParam) (*dto.PageResponse, error) {
	requests, total, err := s.requestRepo.List(param)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询发布单失败", err)
	}

	items := lo.Map(requests, func(req *model.DeploymentRequest, _ int) dto.DeploymentInfo {
		return toDeploymentInfo(req)
	})
	return dto.NewPageResponse(items, total, param.GetPage(), param.GetPageSize()), nil
}

// GetByRequestID 查询单个发布单, 终态请求同时还原逐目标结果
func (s *deploymentService) GetByRequestID(requestID string) (*dto.DeploymentOutcome, error) {
	request, err := s.requestRepo.GetByRequestID(requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询发布单失败", err)
	}

	outcome := &dto.DeploymentOutcome{DeploymentInfo: toDeploymentInfo(request)}
	if len(request.Result) > 0 {
		if err := json.Unmarshal(request.Result, &outcome.Targets); err != nil {
			return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "解析运行结果失败", err)
		}
	}
	return outcome, nil
}

// resolveTargets 解析目标集合, target_ids 与 target_group 二选一
func (s *deploymentService) resolveTargets(req *dto.SubmitDeploymentRequest) ([]*model.Target, error) {
	hasIDs := len(req.TargetIDs) > 0
	hasGroup := req.TargetGroup != ""
	switch {
	case hasIDs && hasGroup:
		return nil, pkgErrors.New(pkgErrors.CodeBadRequest, "target_ids 与 target_group 只能指定其一")
	case hasIDs:
		return s.registry.Resolve(req.TargetIDs)
	case hasGroup:
		return s.registry.ResolveGroup(req.TargetGroup)
	default:
		return nil, pkgErrors.New(pkgErrors.CodeBadRequest, "必须指定 target_ids 或 target_group")
	}
}

// buildConfig 合成生效参数快照
//
// 以服务端配置为底, 请求覆盖项逐字段生效。时长字段在这里完成字符串解析,
// 解析失败按参数错误拒绝, 不会带着坏参数进入执行。
func (s *deploymentService) buildConfig(in *dto.DeploymentConfig) (strategy.Config, error) {
	// 服务端缺省值统一走EngineConfig的访问器, 避免两处默认值漂移
	engineCfg := &s.cfg.Engine
	cfg := strategy.Config{
		BatchSize:       engineCfg.GetBatchSize(),
		CanaryCount:     defaultCanaryCount,
		CanaryWeights:   defaultCanaryWeights,
		WindowSamples:   defaultWindowSamples,
		SampleInterval:  defaultSampleInterval,
		ErrorThreshold:  defaultErrorThreshold,
		Timeout:         engineCfg.GetRequestTimeout(),
		RollbackTimeout: engineCfg.GetRollbackTimeout(),
		DrainGrace:      engineCfg.GetDrainGrace(),
		Health:          health.OptionsFromConfig(&s.cfg.Health),
	}
	if in == nil {
		return cfg, nil
	}

	if in.BatchSize > 0 {
		cfg.BatchSize = in.BatchSize
	}
	cfg.RollbackSucceeded = in.RollbackSucceeded
	if in.CanaryCount > 0 {
		cfg.CanaryCount = in.CanaryCount
	}
	if len(in.CanaryWeights) > 0 {
		cfg.CanaryWeights = in.CanaryWeights
	}
	if in.WindowSamples > 0 {
		cfg.WindowSamples = in.WindowSamples
	}
	if in.ErrorThreshold > 0 {
		cfg.ErrorThreshold = in.ErrorThreshold
	}
	if err := overrideDuration(in.SampleInterval, "sample_interval", &cfg.SampleInterval); err != nil {
		return cfg, err
	}
	if err := overrideDuration(in.Timeout, "timeout", &cfg.Timeout); err != nil {
		return cfg, err
	}
	if err := overrideDuration(in.DrainGrace, "drain_grace", &cfg.DrainGrace); err != nil {
		return cfg, err
	}
	if in.Health != nil {
		if err := applyHealthOverride(&cfg.Health, in.Health); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// applyHealthOverride 把单次发布的健康检查覆盖项套到基础参数上
func applyHealthOverride(opts *health.Options, h *dto.HealthOverride) error {
	if h.Path != "" {
		opts.Path = h.Path
	}
	if h.Port > 0 {
		opts.Port = h.Port
	}
	if err := overrideDuration(h.Timeout, "health.timeout", &opts.Timeout); err != nil {
		return err
	}
	if h.Retries != nil {
		opts.Retries = *h.Retries
	}
	if h.Backoff != "" {
		opts.Backoff = h.Backoff
	}
	if err := overrideDuration(h.BackoffBase, "health.backoff_base", &opts.BackoffBase); err != nil {
		return err
	}
	if h.SuccessThreshold > 0 {
		opts.SuccessThreshold = h.SuccessThreshold
	}
	*opts = opts.Normalize()
	return nil
}

// overrideDuration 解析请求里的时长覆盖项, 空串表示沿用默认值
func overrideDuration(value, field string, out *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return pkgErrors.New(pkgErrors.CodeBadRequest, fmt.Sprintf("%s 不是合法时长: %s", field, value))
	}
	if d <= 0 {
		return pkgErrors.New(pkgErrors.CodeBadRequest, fmt.Sprintf("%s 必须为正时长", field))
	}
	*out = d
	return nil
}

func toDeploymentInfo(request *model.DeploymentRequest) dto.DeploymentInfo {
	info := dto.DeploymentInfo{
		ID:          request.ID,
		RequestID:   request.RequestID,
		ArtifactRef: request.ArtifactRef,
		Version:     request.Version,
		Strategy:    request.Strategy,
		TargetGroup: request.TargetGroup,
		Initiator:   request.Initiator,
		Status:      request.Status,
		StartedAt:   request.StartedAt,
		FinishedAt:  request.FinishedAt,
		CreatedAt:   request.CreatedAt,
	}
	if request.ErrorDetail != nil {
		info.ErrorDetail = *request.ErrorDetail
	}
	if len(request.TargetIDs) > 0 {
		// 入库前已校验, 这里的反序列化不会失败
		_ = json.Unmarshal(request.TargetIDs, &info.TargetIDs)
	}
	return info
}

func toTargetOutcomes(results []strategy.TargetResult) []dto.TargetOutcome {
	return lo.Map(results, func(r strategy.TargetResult, _ int) dto.TargetOutcome {
		return dto.TargetOutcome{
			TargetID:     r.TargetID,
			TargetName:   r.TargetName,
			Address:      r.Address,
			Outcome:      r.Outcome,
			FinalVersion: r.FinalVersion,
			Detail:       r.Detail,
		}
	})
}
