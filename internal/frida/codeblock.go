package frida

import (
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("```(?:javascript|js)?\\n([\\s\\S]*?)```")

// ExtractCodeBlock 取第一个 javascript/js（或无标签）代码块，找不到时返回去除首尾空白的原文
func ExtractCodeBlock(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}
