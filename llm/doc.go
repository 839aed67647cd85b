// Package llm 实现网关的提供者编排核心：
// 统一的聊天补全数据模型、错误分类、凭据与调用痕迹存储、
// 提供者注册表以及按优先级的失败转移选择器。
//
// 上游厂商的具体协议转换见子包 llm/providers。
package llm
