package agent

import (
	"strings"

	"github.com/fyerfyer/ayurveda-qa-system/internal/llm"
	"github.com/fyerfyer/ayurveda-qa-system/internal/textnorm"
)

// ContextBundle 构建好的生成上下文
// Passages为空表示没有可用证据，生成侧据此放弃回答
type ContextBundle struct {
	Passages  []llm.Passage `json:"passages"`
	Chars     int           `json:"chars"`     // 纳入上下文的总字符数
	Truncated bool          `json:"truncated"` // 是否因预算丢弃了候选
}

// Empty 上下文是否不含任何证据
func (b *ContextBundle) Empty() bool {
	return len(b.Passages) == 0
}

// ContextBuilder 上下文构建器
// 在字符预算内按重排顺序装入候选块，去除重复块
type ContextBuilder struct {
	// 上下文的最大字符数
	maxChars int
	// 近重复判定使用的折叠前缀长度
	dedupePrefix int
}

// ContextOption 上下文构建配置选项
type ContextOption func(*ContextBuilder)

// WithMaxChars 设置上下文的字符预算
func WithMaxChars(n int) ContextOption {
	return func(b *ContextBuilder) {
		if n > 0 {
			b.maxChars = n
		}
	}
}

// NewContextBuilder 创建上下文构建器
func NewContextBuilder(opts ...ContextOption) *ContextBuilder {
	b := &ContextBuilder{
		maxChars:     4000,
		dedupePrefix: 120,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build 从重排结果构建生成上下文
// 同一块ID或文本近重复的候选只保留先出现的一个
// 超出字符预算的候选被丢弃而不是截断，保证每条证据完整
func (b *ContextBuilder) Build(ranked []RankedResult) *ContextBundle {
	bundle := &ContextBundle{Passages: []llm.Passage{}}

	seenIDs := make(map[string]bool)
	seenTexts := make(map[string]bool)

	for _, res := range ranked {
		entry := res.Entry

		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		if seenIDs[entry.ID] {
			continue
		}

		key := b.dedupeKey(text)
		if seenTexts[key] {
			continue
		}

		runeLen := len([]rune(text))
		if bundle.Chars+runeLen > b.maxChars {
			bundle.Truncated = true
			continue
		}

		seenIDs[entry.ID] = true
		seenTexts[key] = true

		bundle.Passages = append(bundle.Passages, llm.Passage{
			ChunkID:    entry.ID,
			DocumentID: entry.DocumentID,
			Text:       text,
			Metadata:   entry.Metadata,
		})
		bundle.Chars += runeLen
	}

	return bundle
}

// dedupeKey 近重复判定键，折叠变音符号后取定长前缀
func (b *ContextBuilder) dedupeKey(text string) string {
	folded := textnorm.FoldDiacritics(text)
	folded = strings.Join(strings.Fields(folded), " ")

	runes := []rune(folded)
	if len(runes) > b.dedupePrefix {
		runes = runes[:b.dedupePrefix]
	}
	return string(runes)
}
