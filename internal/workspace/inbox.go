package workspace

import (
	"context"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/secaudit/secaudit-go/internal/analyzer"
)

// InboxHandler 投递目录的新文件送入 inbox 工作区进行分析
func InboxHandler(r *Registry) func(ctx context.Context, filePath string) error {
	return func(ctx context.Context, filePath string) error {
		ws, err := r.Ensure(InboxID)
		if err != nil {
			return err
		}

		mime := ""
		if m, err := mimetype.DetectFile(filePath); err == nil {
			mime = m.String()
		}
		src, err := analyzer.NewFileSource(filePath, "", mime)
		if err != nil {
			return fmt.Errorf("failed to stat dropped file: %w", err)
		}

		if err := ws.Analyzer.SetMode(analyzer.ModeFile); err != nil {
			return err
		}
		return ws.Analyzer.SelectFile(ctx, src)
	}
}
