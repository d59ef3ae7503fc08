// Package tlsutil 提供远程对象存储连接使用的 TLS 配置，
// HTTP 下载客户端与 Redis 连接共用同一套加固设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
