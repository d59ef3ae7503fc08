// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 patloader 测试的共享工具和辅助函数。

# 概述

testutil 为各包的单元测试提供统一的辅助能力，避免重复实现
合成权重文件、带超时上下文等测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 产物辅助: SynthArtifact / WriteArtifact / ArtifactName，
    生成能通过加载与自检的权重文件
  - 异步辅助: WaitForChannel

# 子包

  - testutil/mocks: MemoryStore（内存对象存储，可注入错误与延迟）、
    RecordingSink（记录加载器事件的 MetricsSink）
*/
package testutil
