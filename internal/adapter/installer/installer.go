package installer

import (
	"context"

	"deploy-orchestrator/internal/model"
)

// Installer 制品安装钩子, 把一个版本的制品放到目标上并拉起进程
//
// 安装动作是黑盒(拷贝制品+重启受管进程), 错误不做重试, 直接判定该目标失败。
type Installer interface {
	Install(ctx context.Context, target *model.Target, artifact, version string) error
}
