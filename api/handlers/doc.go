// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 patloader 管理 HTTP API 的请求处理器实现。

# 概述

handlers 包实现了产物加载、回退、版本查询、加载器指标、缓存清理、
进度推送以及健康检查等端点，并提供统一的响应与错误处理。
所有 Handler 均遵循标准 net/http 接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - ArtifactHandler: 规格列表、加载、回退、当前版本、历史、指标与缓存清理
  - ProgressHandler: 通过 websocket 推送加载进度事件
  - HealthHandler: 服务健康检查（/health, /healthz, /ready）
  - Response: 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo: 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter: 包装 http.ResponseWriter 以捕获状态码与字节数
  - HealthCheck: 可插拔健康检查接口（产物目录、数据库等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - ErrorCode 到 HTTP 状态码的自动映射（4xx/5xx）
  - 加载请求带超时上下文，客户端断开时取消
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
