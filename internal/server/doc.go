// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 patloader 的监听端口（API 与 metrics），
支持非阻塞启动、优雅关闭与系统信号监听。

# 核心类型

  - Manager：封装一个具名端口的 http.Server 与 net.Listener，
    提供 Start/Shutdown/WaitForShutdown。
  - Config：监听地址、读写超时与关闭超时，由 FromServerConfig 从应用配置构造。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务。
  - 优雅关闭：Shutdown 在配置的超时内排空请求，关闭后不可再启动。
  - 信号监听：WaitForShutdown 在 SIGINT/SIGTERM、ctx 取消或服务异常时触发关闭。
*/
package server
