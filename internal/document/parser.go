package document

import (
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/fyerfyer/ayurveda-qa-system/internal/textnorm"
)

// Parser 文档解析器接口
// 把不同格式的输入解析为按页组织的原始文本
// OCR识别在系统边界之外完成，这里接收的是OCR输出
type Parser interface {
	// Parse 解析文档，返回按页组织的文本
	Parse(filePath string) ([]textnorm.Page, error)

	// ParseReader 从Reader解析文档
	// filename用于确定文档类型
	ParseReader(r io.Reader, filename string) ([]textnorm.Page, error)
}

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PageBundle OCR逐页输出的JSONL格式
	PageBundle ContentType = "pagebundle"
	// Markdown 文档类型
	Markdown ContentType = "markdown"
	// PlainText 纯文本类型
	PlainText ContentType = "plaintext"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

// ErrUnsupportedType 不支持的文档类型
var ErrUnsupportedType = errors.New("unsupported document type")

// ParserFactory 解析器工厂函数，根据文件类型创建对应的解析器
func ParserFactory(filePath string) (Parser, error) {
	switch detectContentType(filePath) {
	case PageBundle:
		return NewPageBundleParser(), nil
	case Markdown:
		return NewMarkdownParser(), nil
	case PlainText:
		return NewPlainTextParser(), nil
	default:
		return nil, ErrUnsupportedType
	}
}

// detectContentType 根据文件扩展名检测内容类型
func detectContentType(filePath string) ContentType {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".jsonl", ".ndjson":
		return PageBundle
	case ".md", ".markdown":
		return Markdown
	case ".txt":
		return PlainText
	default:
		return Unknown
	}
}
