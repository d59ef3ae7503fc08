// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package history 使用 GORM 持久化制品版本历史。

Store 实现 artifact.VersionHistory：Loader 每次成功加载后追加一条记录，
FallbackHistory 模式下通过 PreviousVersion 查找早于当前版本的最大已记录版本。
Open 支持 postgres、mysql 与 sqlite（纯 Go 驱动）。
*/
package history
