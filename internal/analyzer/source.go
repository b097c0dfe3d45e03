package analyzer

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// Source 待分析文件
type Source interface {
	Name() string
	Size() int64
	MIMEType() string // 声明的类型，可为空
	Open() (io.ReadCloser, error)
}

// FileInfo 已选择文件的元数据
type FileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mime_type"`
}

func infoOf(src Source) FileInfo {
	return FileInfo{Name: src.Name(), Size: src.Size(), MIMEType: src.MIMEType()}
}

// FileSource 磁盘上的暂存文件
type FileSource struct {
	Path     string
	FileName string
	Bytes    int64
	MIME     string
}

// NewFileSource 以磁盘文件构造来源，name 为空时取路径
func NewFileSource(path, name, mime string) (*FileSource, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = st.Name()
	}
	return &FileSource{Path: path, FileName: name, Bytes: st.Size(), MIME: mime}, nil
}

func (f *FileSource) Name() string                 { return f.FileName }
func (f *FileSource) Size() int64                  { return f.Bytes }
func (f *FileSource) MIMEType() string             { return f.MIME }
func (f *FileSource) Open() (io.ReadCloser, error) { return os.Open(f.Path) }

// BytesSource 内存数据
type BytesSource struct {
	FileName string
	MIME     string
	Data     []byte
}

func (b *BytesSource) Name() string     { return b.FileName }
func (b *BytesSource) Size() int64      { return int64(len(b.Data)) }
func (b *BytesSource) MIMEType() string { return b.MIME }
func (b *BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

// probe 读取前 4 个字节确认文件可读
func probe(src Source) error {
	rc, err := src.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	buf := make([]byte, 4)
	_, err = io.ReadFull(rc, buf)
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil
	}
	return err
}

// readPrefix 读取最多 limit 字节
func readPrefix(src Source, limit int64) ([]byte, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, limit))
}
