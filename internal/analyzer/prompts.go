package analyzer

import (
	"fmt"
	"strings"

	"github.com/secaudit/secaudit-go/internal/domain"
)

// 固定提示文案
const (
	FallbackReport   = "Nenhuma análise retornada."
	CodeErrorReport  = "Erro ao analisar o código. Verifique o console."
	FileErrorReport  = "Erro ao analisar os metadados do arquivo. Verifique o console."
	PatchErrorReport = "Erro ao aplicar o patch. Verifique o console."
	ProbeError       = "Não foi possível ler o arquivo. Ele pode estar corrompido ou sem permissão."

	ExportFilename = "relatorio_seguranca.md"
)

const codeAuditPrompt = `Você é um Engenheiro de Segurança Android Sênior. Analise o seguinte código (pode ser AndroidManifest.xml, Java, Kotlin ou Smali) em busca de vulnerabilidades de segurança, más práticas, componentes exportados indevidamente ou segredos hardcoded. Responda em Português do Brasil (PT-BR) de forma técnica e direta.

Código:
%s`

const fileAuditPrompt = `Você é um Engenheiro de Segurança Sênior e Especialista em Engenharia Reversa. O usuário carregou um arquivo para análise na nossa plataforma web.

Metadados do Arquivo:
- Nome: %s
- Extensão: .%s
- Tamanho: %s MB
- Tipo MIME: %s

Como não podemos descompilar ou ler arquivos binários grandes diretamente no navegador do cliente, crie um "Plano de Auditoria e Engenharia Reversa" detalhado para este arquivo específico.

Diretrizes:
1. Se for um pacote (APK, AAB, ZIP, IPA): Diga quais ferramentas usar (apktool, jadx, etc) e o que procurar (strings, ofuscação, libs nativas). Dê um exemplo de script Frida útil.
2. Se for uma biblioteca compilada (.so, .dll, ex: libil2cpp.so): Sugira ferramentas de análise estática/dinâmica (Ghidra, IDA Pro, Il2CppDumper) e explique como encontrar offsets de funções importantes (vida, dinheiro, etc).
3. Se for código-fonte ou texto (.cs, .cpp, .java, .xml, .txt): Explique a importância desse tipo de arquivo no contexto de jogos/apps e quais vulnerabilidades ou lógicas de segurança costumam estar presentes neles.

Responda em Português do Brasil (PT-BR) com formatação Markdown clara e direta.`

const patchPrompt = "Você é um especialista em engenharia reversa e modificação de jogos e aplicativos Android. " +
	"O usuário editou o arquivo `%s` de um pacote descompilado.\n\n" +
	"Conteúdo original:\n```\n%s\n```\n\n" +
	"Conteúdo modificado:\n```\n%s\n```\n\n" +
	"Explique de forma narrativa o que essa modificação realiza no contexto de hacking de jogos/apps " +
	"(quais verificações foram contornadas, quais valores foram alterados e qual o efeito esperado em tempo de execução). " +
	"Responda em Português do Brasil (PT-BR) com formatação Markdown."

const patchNarrative = "## ✅ Patch aplicado com sucesso\n\n" +
	"**Arquivo modificado:** `%s`\n\n" +
	"**Recompilação (simulada):**\n" +
	"1. `apktool b ./decompiled -o %s`: reconstrução do pacote com os recursos e o bytecode alterados.\n" +
	"2. `apksigner sign --ks debug.keystore %s`: assinatura do pacote modificado.\n\n" +
	"### Análise da modificação\n\n%s"

// ModPlaceholder 下载的修改包内容（占位，不是真实的安装包）
const ModPlaceholder = "Este arquivo é um placeholder gerado pela plataforma SecAudit.\n" +
	"Nenhuma recompilação real foi executada: o patch é apenas uma simulação narrativa.\n"

// BuildCodePrompt 代码审计提示
func BuildCodePrompt(code string) string {
	return fmt.Sprintf(codeAuditPrompt, code)
}

// BuildFilePrompt 文件元数据审计提示
func BuildFilePrompt(info FileInfo) string {
	mime := info.MIMEType
	if mime == "" {
		mime = "Desconhecido"
	}
	ext := Extension(info.Name)
	if ext == "" {
		ext = "desconhecido"
	}
	return fmt.Sprintf(fileAuditPrompt, info.Name, ext, SizeMB(info.Size), mime)
}

// BuildPatchPrompt 补丁说明提示
func BuildPatchPrompt(f domain.VirtualFile) string {
	return fmt.Sprintf(patchPrompt, f.Path, f.OriginalContent, f.Content)
}

// PatchReport 补丁成功报告
func PatchReport(filePath, fileName, explanation string) string {
	mod := ModPackageName(fileName)
	return fmt.Sprintf(patchNarrative, filePath, mod, mod, explanation)
}

// Extension 最后一个点之后的部分（小写）
// 没有点时返回整个文件名，因此名为 "apk" 的文件按安装包处理
func Extension(name string) string {
	return strings.ToLower(name[strings.LastIndex(name, ".")+1:])
}

// SizeMB 以 MiB 计、保留两位小数
func SizeMB(size int64) string {
	return fmt.Sprintf("%.2f", float64(size)/(1024*1024))
}

var modSuffixes = []string{".apk", ".aab", ".zip"}

// ModPackageName 原文件名的 .apk/.aab/.zip 后缀替换为 _mod.apk，否则追加
func ModPackageName(name string) string {
	if name == "" {
		name = "app"
	}
	lower := strings.ToLower(name)
	for _, s := range modSuffixes {
		if strings.HasSuffix(lower, s) {
			return name[:len(name)-len(s)] + "_mod.apk"
		}
	}
	return name + "_mod.apk"
}
