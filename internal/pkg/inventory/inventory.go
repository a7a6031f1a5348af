package inventory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"deploy-orchestrator/pkg/constants"
)

// TargetSpec 清单中的一台目标主机
type TargetSpec struct {
	Name    string            `yaml:"name"`
	Address string            `yaml:"address"` // host:port
	Group   string            `yaml:"group"`
	Pool    string            `yaml:"pool"` // blue / green, 蓝绿策略使用
	Labels  map[string]string `yaml:"labels"`
}

// File 目标清单文件
type File struct {
	Targets []TargetSpec `yaml:"targets"`
}

// Load 读取并校验目标清单
func Load(path string) ([]TargetSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取目标清单失败: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析目标清单失败: %w", err)
	}

	if err := validate(file.Targets); err != nil {
		return nil, err
	}

	return file.Targets, nil
}

// validate 清单合法性检查: 名称唯一, 地址必填, 池标签合法
func validate(specs []TargetSpec) error {
	seen := make(map[string]struct{}, len(specs))
	for i, spec := range specs {
		if spec.Name == "" {
			return fmt.Errorf("第%d个目标缺少name", i+1)
		}
		if spec.Address == "" {
			return fmt.Errorf("目标%s缺少address", spec.Name)
		}
		if _, ok := seen[spec.Name]; ok {
			return fmt.Errorf("目标名称重复: %s", spec.Name)
		}
		seen[spec.Name] = struct{}{}

		switch spec.Pool {
		case "", constants.PoolBlue, constants.PoolGreen:
		default:
			return fmt.Errorf("目标%s的pool非法: %s", spec.Name, spec.Pool)
		}
	}
	return nil
}
