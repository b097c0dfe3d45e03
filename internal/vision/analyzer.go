// Package vision 界面截图安全分析
package vision

import (
	"context"
	"errors"
	"sync"

	"github.com/secaudit/secaudit-go/internal/ai"
	"github.com/secaudit/secaudit-go/internal/events"
	"github.com/sirupsen/logrus"
)

// Component 事件中的组件名
const Component = "vision"

const (
	Instruction    = "Analise esta captura de tela do meu aplicativo Android. Procure por possíveis vazamentos de dados sensíveis na interface (PII, tokens, senhas expostas), problemas de UX que possam levar a engenharia social, ou áreas suscetíveis a ataques de overlay (tapjacking). Forneça um relatório de segurança focado na UI."
	FallbackReport = "Nenhuma análise retornada."
	ErrorReport    = "Erro ao analisar a imagem. Verifique o console."
)

var (
	ErrNoImage = errors.New("vision: no image loaded")
	ErrBusy    = errors.New("vision: analysis already in flight")
)

// State 分析器状态
type State struct {
	Image    string `json:"image,omitempty"` // data URL
	Analysis string `json:"analysis"`
	Loading  bool   `json:"loading"`
}

// Analyzer 截图分析器，新图片直接覆盖旧图片
type Analyzer struct {
	gw      ai.Gateway
	logger  *logrus.Logger
	emitter events.Emitter

	mu       sync.Mutex
	image    *Image
	analysis string
	loading  bool
}

// New 创建分析器
func New(gw ai.Gateway, logger *logrus.Logger, workspace string, notifier events.Notifier) *Analyzer {
	return &Analyzer{
		gw:      gw,
		logger:  logger,
		emitter: events.Emitter{Workspace: workspace, Component: Component, Notifier: notifier},
	}
}

// SetImage 以 data URL 替换当前图片
func (v *Analyzer) SetImage(dataURL string) error {
	img, err := ParseDataURL(dataURL)
	if err != nil {
		return err
	}
	v.replace(img)
	return nil
}

// SetImageBytes 以原始字节替换当前图片
func (v *Analyzer) SetImageBytes(data []byte, mime string) error {
	img, err := DetectImage(data, mime)
	if err != nil {
		return err
	}
	v.replace(img)
	return nil
}

func (v *Analyzer) replace(img Image) {
	v.mu.Lock()
	v.image = &img
	v.mu.Unlock()
	v.publish()
}

// Analyze 请求界面安全审计
func (v *Analyzer) Analyze(ctx context.Context) error {
	v.mu.Lock()
	if v.image == nil {
		v.mu.Unlock()
		return ErrNoImage
	}
	if v.loading {
		v.mu.Unlock()
		return ErrBusy
	}
	img := *v.image
	v.loading = true
	v.mu.Unlock()
	v.publish()

	text, err := v.gw.Generate(ctx, ai.InlinePart(img.MIMEType, img.Data), ai.TextPart(Instruction))
	if err != nil {
		v.logger.WithError(err).WithField("workspace", v.emitter.Workspace).Error("Image analysis failed")
		text = ErrorReport
	} else if text == "" {
		text = FallbackReport
	}

	v.mu.Lock()
	v.analysis = text
	v.loading = false
	v.mu.Unlock()
	v.publish()
	v.emitter.Emit(events.KindReport, text)
	return nil
}

// State 当前状态
func (v *Analyzer) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := State{Analysis: v.analysis, Loading: v.loading}
	if v.image != nil {
		s.Image = v.image.DataURL()
	}
	return s
}

func (v *Analyzer) publish() {
	v.emitter.Emit(events.KindState, v.State())
}
