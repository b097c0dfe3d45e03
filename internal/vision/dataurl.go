package vision

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrInvalidDataURL = errors.New("vision: invalid data URL")
	ErrNotImage       = errors.New("vision: content is not an image")
)

// Image 解码后的图片
type Image struct {
	MIMEType string
	Data     []byte
}

// ParseDataURL 拆分 data:<mime>;base64,<payload>
func ParseDataURL(dataURL string) (Image, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return Image{}, ErrInvalidDataURL
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, ErrInvalidDataURL
	}
	mime, params, _ := strings.Cut(header, ";")
	if !strings.Contains(params, "base64") {
		return Image{}, fmt.Errorf("%w: payload is not base64", ErrInvalidDataURL)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	if !strings.HasPrefix(mime, "image/") {
		return Image{}, fmt.Errorf("%w: %q", ErrNotImage, mime)
	}
	return Image{MIMEType: mime, Data: data}, nil
}

// DataURL 编码为 data URL
func (img Image) DataURL() string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// DetectImage 未声明类型时按内容嗅探，结果必须是 image/*
func DetectImage(data []byte, declared string) (Image, error) {
	mime := declared
	if mime == "" || mime == "application/octet-stream" {
		mime = mimetype.Detect(data).String()
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if !strings.HasPrefix(mime, "image/") {
		return Image{}, fmt.Errorf("%w: %q", ErrNotImage, mime)
	}
	return Image{MIMEType: mime, Data: data}, nil
}
