package domain

import "strings"

// HookCategory Frida 注入类型
type HookCategory string

const (
	HookSSLPinning     HookCategory = "ssl_pinning"
	HookRootBypass     HookCategory = "root_bypass"
	HookEmulatorBypass HookCategory = "emulator_bypass"
	HookCustom         HookCategory = "custom_hook"
)

// Valid 是否为已知类型
func (c HookCategory) Valid() bool {
	switch c {
	case HookSSLPinning, HookRootBypass, HookEmulatorBypass, HookCustom:
		return true
	}
	return false
}

// HookRequest 脚本生成参数
// CustomClass/CustomMethod 仅在 custom_hook 时必填
type HookRequest struct {
	TargetPackage string       `json:"target_package"`
	Category      HookCategory `json:"hook_type"`
	CustomClass   string       `json:"custom_class,omitempty"`
	CustomMethod  string       `json:"custom_method,omitempty"`
}

// Submittable 是否允许提交
func (r HookRequest) Submittable() bool {
	if r.Category != HookCustom {
		return true
	}
	return strings.TrimSpace(r.CustomClass) != "" && strings.TrimSpace(r.CustomMethod) != ""
}
