package auth

import "strings"

// Role 内置角色
type Role string

const (
	RoleAdmin    Role = "admin"    // 管理员: 全部操作
	RoleDeployer Role = "deployer" // 发布账号: 提交发布+只读
	RoleViewer   Role = "viewer"   // 只读账号
)

// Permission 内置权限
type Permission string

const (
	PermDeploySubmit Permission = "deploy:submit"
	PermDeployView   Permission = "deploy:view"

	PermTargetWrite Permission = "target:write"
	PermTargetView  Permission = "target:view"

	PermRecordView Permission = "record:view"
)

// RolePermissions 每个角色拥有的权限集合
var RolePermissions = map[Role][]Permission{
	RoleAdmin: {
		"*",
	},
	RoleDeployer: {
		"deploy:*",
		"target:view",
		"record:view",
	},
	RoleViewer: {
		"deploy:view",
		"target:view",
		"record:view",
	},
}

// Allow 判断一组角色是否包含所需权限，支持通配符
func Allow(roles []string, need Permission) bool {
	permissions := collectPermissions(roles)

	return len(permissions) > 0 && allow(permissions, need)
}

func collectPermissions(roles []string) []Permission {
	perms := make([]Permission, 0)
	for _, r := range roles {
		if ps, ok := RolePermissions[Role(r)]; ok {
			perms = append(perms, ps...)
		}
	}
	return perms
}

func allow(have []Permission, need Permission) bool {
	reqParts := strings.Split(string(need), ":")

	for _, p := range have {
		if p == need || p == "*" {
			return true
		}

		allParts := strings.Split(string(p), ":")
		if matchParts(allParts, reqParts) {
			return true
		}
	}
	return false
}

// matchParts 按段匹配权限, 末段*匹配剩余所有段
func matchParts(allowed, required []string) bool {
	for i, part := range allowed {
		if part == "*" {
			return true
		}
		if i >= len(required) || part != required[i] {
			return false
		}
	}
	return len(allowed) == len(required)
}
