// Package config 提供编排网关的配置管理功能。
//
// 配置来源按优先级依次为默认值、YAML 文件与环境变量
// （前缀 ORCHESTRATOR，另兼容 EVENTS_ENABLED / LOG_LEVEL /
// LOG_FILE 三个无前缀开关）。Providers 段描述上游提供者的
// 路由顺序、端点与默认模型。
package config
