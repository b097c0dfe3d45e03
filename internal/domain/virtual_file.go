package domain

import (
	"path"
	"strings"
)

// VirtualFile 可编辑的虚拟文件
// OriginalContent 创建后不再修改，作为补丁对比基线
type VirtualFile struct {
	Path            string `json:"path"`
	Content         string `json:"content"`
	OriginalContent string `json:"original_content"`
	Language        string `json:"language"`
}

// NewVirtualFile 创建虚拟文件，Content 与 OriginalContent 相同
func NewVirtualFile(filePath, content string) VirtualFile {
	return VirtualFile{
		Path:            filePath,
		Content:         content,
		OriginalContent: content,
		Language:        LanguageFor(filePath),
	}
}

// Modified 是否已被编辑
func (f VirtualFile) Modified() bool {
	return f.Content != f.OriginalContent
}

var languageByExt = map[string]string{
	".java":  "java",
	".kt":    "kotlin",
	".smali": "smali",
	".xml":   "xml",
	".json":  "json",
	".js":    "javascript",
	".cs":    "csharp",
	".cpp":   "cpp",
	".c":     "c",
	".h":     "c",
	".py":    "python",
	".txt":   "plaintext",
}

// LanguageFor 根据扩展名推断语言标签
func LanguageFor(filePath string) string {
	ext := strings.ToLower(path.Ext(filePath))
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return "plaintext"
}
