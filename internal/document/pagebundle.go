package document

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/fyerfyer/ayurveda-qa-system/internal/textnorm"
)

// PageBundleParser OCR页面包解析器
// 每行一个JSON对象，content为该页的OCR文本，metadata.page为页码
// 缺失页码的行按出现顺序补号，输出按页码排序
type PageBundleParser struct{}

// NewPageBundleParser 创建页面包解析器
func NewPageBundleParser() Parser {
	return &PageBundleParser{}
}

// bundleLine JSONL中的一行
type bundleLine struct {
	Content  string `json:"content"`
	Metadata struct {
		Source string `json:"source"`
		Page   int    `json:"page"`
	} `json:"metadata"`
}

// Parse 解析页面包文件
func (p *PageBundleParser) Parse(filePath string) ([]textnorm.Page, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open page bundle: %v", err)
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 从Reader解析页面包内容
func (p *PageBundleParser) ParseReader(r io.Reader, filename string) ([]textnorm.Page, error) {
	scanner := bufio.NewScanner(r)
	// OCR整页文本可能很长
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var pages []textnorm.Page
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry bundleLine
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("invalid page bundle line %d: %v", lineNo, err)
		}

		number := entry.Metadata.Page
		if number <= 0 {
			number = len(pages) + 1
		}

		pages = append(pages, textnorm.Page{
			Number: number,
			Text:   entry.Content,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read page bundle: %v", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("page bundle %s contains no pages", filename)
	}

	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].Number < pages[j].Number
	})

	return pages, nil
}
