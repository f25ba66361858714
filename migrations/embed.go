// Package migrations 内嵌各数据库方言的表结构迁移脚本。
package migrations

import "embed"

// FS 按数据库类型分目录存放 golang-migrate 格式的迁移文件
//
//go:embed postgres/*.sql mysql/*.sql sqlite/*.sql
var FS embed.FS
