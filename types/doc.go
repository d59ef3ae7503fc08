// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 patloader 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 artifact、api、cmd
等上层模块提供统一的错误码与上下文键契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode: 结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - Coder: 携带 ErrorCode 的错误接口，GetErrorCode 沿错误链查找

# 主要能力

  - Context 传播：WithRequestID / WithLoadID 及对应读取函数
*/
package types
