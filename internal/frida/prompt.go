package frida

import (
	"fmt"

	"github.com/secaudit/secaudit-go/internal/domain"
)

// DefaultPackage 未填写包名时使用
const DefaultPackage = "com.target.app"

var objectives = map[domain.HookCategory]string{
	domain.HookSSLPinning:     "Fazer bypass de SSL Pinning (OkHttp3, TrustManager, etc) para interceptar tráfego HTTP/HTTPS.",
	domain.HookRootBypass:     "Fazer bypass de detecção de Root (RootBeer, verificação de binários su, test-keys, etc).",
	domain.HookEmulatorBypass: "Fazer bypass de detecção de Emulador (verificação de build props, qemu, bluestacks, etc).",
}

const customObjective = "Fazer um hook customizado na classe '%s' e interceptar o método '%s'. O script deve logar os argumentos originais, permitir a modificação do retorno (ex: retornar true ou um valor alto) e chamar o método original."

const scriptPrompt = "Você é um especialista em Engenharia Reversa Android e Frida.\n" +
	"Crie um script Frida (JavaScript) focado no aplicativo alvo: \"%s\".\n" +
	"Objetivo do script: %s\n\n" +
	"Regras:\n" +
	"1. Retorne APENAS o código JavaScript válido, pronto para ser injetado com 'frida -U -f %s -l script.js'.\n" +
	"2. Inclua comentários curtos e explicativos no código em Português (PT-BR).\n" +
	"3. Use blocos Java.perform(function() { ... }).\n" +
	"4. Formate a resposta dentro de um bloco de código markdown (```javascript ... ```)."

// Objective 类型对应的目标描述
func Objective(req domain.HookRequest) (string, bool) {
	if req.Category == domain.HookCustom {
		return fmt.Sprintf(customObjective, req.CustomClass, req.CustomMethod), true
	}
	o, ok := objectives[req.Category]
	return o, ok
}

// BuildPrompt 组装脚本生成提示
func BuildPrompt(req domain.HookRequest) string {
	pkg := PackageOrDefault(req.TargetPackage)
	objective, _ := Objective(req)
	return fmt.Sprintf(scriptPrompt, pkg, objective, pkg)
}

// PackageOrDefault 包名为空时返回默认值
func PackageOrDefault(pkg string) string {
	if pkg == "" {
		return DefaultPackage
	}
	return pkg
}
