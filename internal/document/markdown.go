package document

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/fyerfyer/ayurveda-qa-system/internal/textnorm"
)

// MarkdownParser Markdown文档解析器
// 渲染为HTML后剥离标签取得纯文本，整个文件视为单独一页
type MarkdownParser struct{}

// NewMarkdownParser 创建Markdown解析器
func NewMarkdownParser() Parser {
	return &MarkdownParser{}
}

// Parse 解析Markdown文件
func (p *MarkdownParser) Parse(filePath string) ([]textnorm.Page, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open markdown file: %w", err)
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 从Reader解析Markdown内容
func (p *MarkdownParser) ParseReader(r io.Reader, filename string) ([]textnorm.Page, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown content: %w", err)
	}

	mdParser := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := mdParser.Parse(content)

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.Render(doc, renderer)

	return []textnorm.Page{
		{Number: 1, Text: stripHTML(string(rendered))},
	}, nil
}

// blockTagBreaks 块级标签到换行的替换表
// 标题的起始标签带id属性，交给通用剥离处理
var blockTagBreaks = strings.NewReplacer(
	"<br>", "\n", "<br/>", "\n", "<br />", "\n",
	"<p>", "", "</p>", "\n\n",
	"<li>", "- ", "</li>", "\n",
	"<ul>", "\n", "</ul>", "\n",
	"<ol>", "\n", "</ol>", "\n",
	"</h1>", "\n\n", "</h2>", "\n\n", "</h3>", "\n\n",
	"</h4>", "\n\n", "</h5>", "\n\n", "</h6>", "\n\n",
)

// stripHTML 把渲染后的HTML还原为纯文本
// 块级标签换行，其余标签移除，段落结构保留供分块器识别
func stripHTML(htmlText string) string {
	text := blockTagBreaks.Replace(htmlText)

	// 移除剩余标签
	var sb strings.Builder
	sb.Grow(len(text))
	inTag := false
	for _, r := range text {
		switch {
		case r == '<':
			inTag = true
			sb.WriteByte(' ')
		case r == '>' && inTag:
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}

	// 行内空白收敛，连续空行折叠成段落分隔
	lines := strings.Split(sb.String(), "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
