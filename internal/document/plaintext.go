package document

import (
	"fmt"
	"io"
	"os"

	"github.com/fyerfyer/ayurveda-qa-system/internal/textnorm"
)

// PlainTextParser 纯文本解析器
// 整个文件视为单独一页
type PlainTextParser struct{}

// NewPlainTextParser 创建一个新的纯文本解析器
func NewPlainTextParser() Parser {
	return &PlainTextParser{}
}

// Parse 解析纯文本文件
func (p *PlainTextParser) Parse(filePath string) ([]textnorm.Page, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open text file: %w", err)
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 从Reader解析纯文本内容
func (p *PlainTextParser) ParseReader(r io.Reader, filename string) ([]textnorm.Page, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read text content: %w", err)
	}

	return []textnorm.Page{
		{Number: 1, Text: string(content)},
	}, nil
}
