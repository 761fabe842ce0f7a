package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/fyerfyer/ayurveda-qa-system/internal/textnorm"
)

// 分块默认参数
const (
	DefaultMaxChunkChars = 1000 // 单块核心文本的最大字符数
	DefaultMinChunkChars = 200  // 单块核心文本的最小字符数（末块除外）
	DefaultOverlapChars  = 200  // 相邻块之间的重叠字符数
)

// sentenceDelimiters 句子结束符
var sentenceDelimiters = []rune{'.', '!', '?'}

// Config 分块器配置
type Config struct {
	MaxChunkChars int // 单块最大字符数
	MinChunkChars int // 单块最小字符数，低于该值的中间块会被合并
	OverlapChars  int // 重叠前缀字符数
}

// DefaultConfig 返回默认分块配置
func DefaultConfig() Config {
	return Config{
		MaxChunkChars: DefaultMaxChunkChars,
		MinChunkChars: DefaultMinChunkChars,
		OverlapChars:  DefaultOverlapChars,
	}
}

// Chunk 检索单元
// 由分块器创建后不可变，块ID由文档ID与偏移量哈希得出，完全确定
type Chunk struct {
	ID         string `json:"id"`          // 稳定块ID
	DocumentID string `json:"document_id"` // 来源文档ID
	Index      int    `json:"index"`       // 块在文档内的序号
	Text       string `json:"text"`        // 块文本（含重叠前缀）
	Start      int    `json:"start"`       // 核心文本在清洗后全文中的起始字符偏移
	End        int    `json:"end"`         // 结束偏移（不含）
	Pages      []int  `json:"pages"`       // 覆盖的页码
	Overlap    bool   `json:"overlap"`     // 是否带有来自前一块的重叠前缀
}

// Chunker 句子感知分块器
// 无状态，逐文档调用互不影响，同一输入总是产出同一块序列
type Chunker struct {
	config Config
}

// New 创建分块器
func New(config Config) (*Chunker, error) {
	if config.MaxChunkChars <= 0 {
		config.MaxChunkChars = DefaultMaxChunkChars
	}
	if config.OverlapChars < 0 {
		config.OverlapChars = DefaultOverlapChars
	}
	if config.MinChunkChars < 0 {
		config.MinChunkChars = DefaultMinChunkChars
	}
	if config.OverlapChars >= config.MaxChunkChars {
		return nil, fmt.Errorf("overlap chars (%d) must be smaller than max chunk chars (%d)",
			config.OverlapChars, config.MaxChunkChars)
	}
	if config.MinChunkChars > config.MaxChunkChars {
		return nil, fmt.Errorf("min chunk chars (%d) must not exceed max chunk chars (%d)",
			config.MinChunkChars, config.MaxChunkChars)
	}
	return &Chunker{config: config}, nil
}

// ChunkDocument 对归一化后的文档分块并标注页码覆盖
func (c *Chunker) ChunkDocument(doc *textnorm.NormalizedDocument) ([]Chunk, error) {
	if doc == nil || doc.DocumentID == "" {
		return nil, fmt.Errorf("normalized document with id is required")
	}

	// 拼接各页文本并记录页偏移区间
	type pageSpan struct {
		number     int
		start, end int
	}

	var spans []pageSpan
	var b strings.Builder
	for _, p := range doc.Pages {
		if p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		start := len([]rune(b.String()))
		b.WriteString(p.Text)
		spans = append(spans, pageSpan{
			number: p.Number,
			start:  start,
			end:    start + len([]rune(p.Text)),
		})
	}

	chunks := c.ChunkText(doc.DocumentID, b.String())
	for i := range chunks {
		for _, s := range spans {
			if chunks[i].Start < s.end && chunks[i].End > s.start {
				chunks[i].Pages = append(chunks[i].Pages, s.number)
			}
		}
	}
	return chunks, nil
}

// ChunkText 把清洗后的文本切成带重叠前缀的有序块序列
// 先按句子边界切分，只有单句超过上限时才退化为按字符硬切
func (c *Chunker) ChunkText(docID, text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)
	pieces := c.packSentences(sentences)
	pieces = c.mergeSmallPieces(pieces)

	chunks := make([]Chunk, 0, len(pieces))
	var prevText string
	for i, piece := range pieces {
		chunk := Chunk{
			DocumentID: docID,
			Index:      i,
			Text:       piece.text,
			Start:      piece.start,
			End:        piece.end,
		}

		// 第一块之外的每一块都带上前一块的尾部作为重叠前缀
		if i > 0 && c.config.OverlapChars > 0 {
			overlap := tailRunes(prevText, c.config.OverlapChars)
			if overlap != "" {
				chunk.Text = overlap + " " + piece.text
				chunk.Overlap = true
			}
		}

		chunk.ID = ChunkID(docID, piece.start, piece.end)
		prevText = piece.text
		chunks = append(chunks, chunk)
	}

	return chunks
}

// ChunkID 计算块的稳定ID：文档ID与字符偏移的哈希
func ChunkID(docID string, start, end int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", docID, start, end)))
	return hex.EncodeToString(sum[:16])
}

// piece 核心文本片段及其偏移
type piece struct {
	text       string
	start, end int
}

// sentence 带偏移的句子
type sentence struct {
	text       string
	start, end int
}

// splitSentences 按句子结束符切分文本并保留字符偏移
// 偏移始终指向句子修剪后的首尾字符
func splitSentences(text string) []sentence {
	runes := []rune(text)
	var sentences []sentence

	start := 0
	for i, r := range runes {
		isEnd := false
		for _, d := range sentenceDelimiters {
			if r == d {
				isEnd = true
				break
			}
		}
		if !isEnd {
			continue
		}

		if s, ok := trimmedSpan(runes, start, i+1); ok {
			sentences = append(sentences, s)
		}
		start = i + 1
	}

	if s, ok := trimmedSpan(runes, start, len(runes)); ok {
		sentences = append(sentences, s)
	}

	return sentences
}

// trimmedSpan 去掉区间首尾的空白并返回修正偏移后的句子
func trimmedSpan(runes []rune, start, end int) (sentence, bool) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	if start == end {
		return sentence{}, false
	}
	return sentence{text: string(runes[start:end]), start: start, end: end}, true
}

// packSentences 把句子贪心装入不超过上限的片段
// 单句超过上限时按字符硬切作为最后手段
func (c *Chunker) packSentences(sentences []sentence) []piece {
	var pieces []piece
	var current strings.Builder
	currentRunes := 0
	currentStart := -1
	currentEnd := 0

	flush := func() {
		if current.Len() > 0 {
			pieces = append(pieces, piece{
				text:  current.String(),
				start: currentStart,
				end:   currentEnd,
			})
			current.Reset()
			currentRunes = 0
			currentStart = -1
		}
	}

	for _, s := range sentences {
		runeLen := len([]rune(s.text))

		// 超长单句硬切
		if runeLen > c.config.MaxChunkChars {
			flush()
			pieces = append(pieces, hardSplit(s, c.config.MaxChunkChars)...)
			continue
		}

		if currentRunes > 0 && currentRunes+1+runeLen > c.config.MaxChunkChars {
			flush()
		}

		if current.Len() == 0 {
			currentStart = s.start
		} else {
			current.WriteByte(' ')
			currentRunes++
		}
		current.WriteString(s.text)
		currentRunes += runeLen
		currentEnd = s.end
	}
	flush()

	return pieces
}

// hardSplit 按字符上限硬切超长句子
func hardSplit(s sentence, maxChars int) []piece {
	runes := []rune(s.text)
	var pieces []piece

	for offset := 0; offset < len(runes); offset += maxChars {
		end := offset + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, piece{
			text:  strings.TrimSpace(string(runes[offset:end])),
			start: s.start + offset,
			end:   s.start + end,
		})
	}

	return pieces
}

// mergeSmallPieces 把低于下限的中间片段并入后继片段
// 末块允许短于下限
func (c *Chunker) mergeSmallPieces(pieces []piece) []piece {
	if c.config.MinChunkChars <= 0 || len(pieces) <= 1 {
		return pieces
	}

	var merged []piece
	for _, p := range pieces {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			lastLen := len([]rune(last.text))
			if lastLen < c.config.MinChunkChars &&
				lastLen+1+len([]rune(p.text)) <= c.config.MaxChunkChars {
				last.text = last.text + " " + p.text
				last.end = p.end
				continue
			}
		}
		merged = append(merged, p)
	}

	return merged
}

// tailRunes 取字符串尾部最多n个rune
func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[len(runes)-n:]))
}
