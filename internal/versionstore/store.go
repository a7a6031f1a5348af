package versionstore

import (
	"deploy-orchestrator/internal/model"
)

// Store 版本账本, 只追加、不回写
//
// 每个目标最近一条 outcome=success 的记录即其"最近已知良好版本",
// 回滚与对账都以该记录为准。记录一旦写入不再修改。
type Store interface {
	// Append 追加一条目标级发布记录
	Append(record *model.DeploymentRecord) error
	// LastSuccess 目标最近一次成功记录, 目标从未成功发布过时 ok 为 false
	LastSuccess(targetID int64) (record *model.DeploymentRecord, ok bool, err error)
	// ListByRequest 某次发布请求产生的全部记录, 按写入顺序返回
	ListByRequest(requestID string) ([]*model.DeploymentRecord, error)
}
