package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultRAGTemplate 默认RAG提示词模板
// 包含变量：
// {{.Question}} - 用户问题
// {{.Context}} - 检索的上下文
const DefaultRAGTemplate = `请你作为一个阿育吠陀文献问答助手，只基于下面提供的参考上下文回答问题。
回答时在相关语句后标注来源编号，例如【1】。
如果参考上下文中没有足够信息回答问题，请直接说"` + defaultAbstainMarker + `"，不要猜测或编造信息。

参考上下文:
{{.Context}}

用户问题: {{.Question}}

请直接回答问题，不要重复问题内容。`

// defaultAbstainMarker 模型表示无法回答时使用的固定短语
const defaultAbstainMarker = "抱歉，我没有找到相关信息"

// AbstainReason 放弃回答的原因
const (
	AbstainReasonNoContext            = "no context supplied"
	AbstainReasonInsufficientEvidence = "insufficient evidence in context"
	AbstainReasonModelDeclined        = "model declined to answer from context"
)

// citationMarkerRe 匹配回答文本中的来源编号标注
var citationMarkerRe = regexp.MustCompile(`【(\d+)】`)

// RAGConfig 检索增强生成配置
type RAGConfig struct {
	// 提示词模板
	Template string
	// 最大Token数
	MaxTokens int
	// 温度参数
	Temperature float32
	// 超时时间
	Timeout time.Duration
	// 证据总字符数低于此值时直接放弃回答，不调用模型
	MinEvidenceChars int
	// 放弃回答的标记短语
	AbstainMarker string
}

// DefaultRAGConfig 默认RAG配置
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		Template:         DefaultRAGTemplate,
		MaxTokens:        2048,
		Temperature:      0.3,
		Timeout:          30 * time.Second,
		MinEvidenceChars: 20,
		AbstainMarker:    defaultAbstainMarker,
	}
}

// RAGOption RAG配置选项函数类型
type RAGOption func(*RAGConfig)

// WithTemplate 设置提示词模板
func WithTemplate(template string) RAGOption {
	return func(c *RAGConfig) {
		c.Template = template
	}
}

// WithRAGMaxTokens 设置最大Token数
func WithRAGMaxTokens(tokens int) RAGOption {
	return func(c *RAGConfig) {
		c.MaxTokens = tokens
	}
}

// WithRAGTemperature 设置温度参数
func WithRAGTemperature(temp float32) RAGOption {
	return func(c *RAGConfig) {
		c.Temperature = temp
	}
}

// WithRAGTimeout 设置请求超时时间
func WithRAGTimeout(timeout time.Duration) RAGOption {
	return func(c *RAGConfig) {
		c.Timeout = timeout
	}
}

// WithMinEvidenceChars 设置触发放弃回答的最小证据字符数
func WithMinEvidenceChars(chars int) RAGOption {
	return func(c *RAGConfig) {
		c.MinEvidenceChars = chars
	}
}

// RAGService 实现检索增强生成服务
// 证据不足时不调用大模型，直接返回放弃回答的结果
type RAGService struct {
	Client Client
	config *RAGConfig
	mu     sync.RWMutex
}

// NewRAG 创建新的检索增强生成服务
func NewRAG(client Client, opts ...RAGOption) *RAGService {
	cfg := DefaultRAGConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return &RAGService{
		Client: client,
		config: cfg,
	}
}

// Answer 根据证据段落和问题生成回答
// 空证据或证据不足时返回Abstained为true且Citations为空的回答，这不是错误
func (r *RAGService) Answer(ctx context.Context, question string, passages []Passage) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	r.mu.RLock()
	cfg := *r.config
	r.mu.RUnlock()

	if len(passages) == 0 {
		return abstainAnswer(cfg.AbstainMarker, AbstainReasonNoContext), nil
	}

	evidenceChars := 0
	for _, p := range passages {
		evidenceChars += len(strings.TrimSpace(p.Text))
	}
	if evidenceChars < cfg.MinEvidenceChars {
		return abstainAnswer(cfg.AbstainMarker, AbstainReasonInsufficientEvidence), nil
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	prompt := buildPrompt(cfg.Template, question, passages)

	response, err := r.Client.Generate(
		ctxWithTimeout,
		prompt,
		WithGenerateMaxTokens(cfg.MaxTokens),
		WithGenerateTemperature(cfg.Temperature),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	if strings.Contains(response.Text, cfg.AbstainMarker) {
		answer := abstainAnswer(cfg.AbstainMarker, AbstainReasonModelDeclined)
		answer.ModelName = response.ModelName
		answer.TokenCount = response.TokenCount
		return answer, nil
	}

	return &Answer{
		Text:       response.Text,
		Abstained:  false,
		Citations:  extractCitations(response.Text, passages),
		ModelName:  response.ModelName,
		TokenCount: response.TokenCount,
	}, nil
}

// SetTemplate 设置自定义提示词模板
func (r *RAGService) SetTemplate(template string) *RAGService {
	r.mu.Lock()
	r.config.Template = template
	r.mu.Unlock()
	return r
}

// abstainAnswer 构造放弃回答的结果
func abstainAnswer(marker, reason string) *Answer {
	return &Answer{
		Text:      marker,
		Abstained: true,
		Reason:    reason,
		Citations: []Citation{},
	}
}

// buildPrompt 构建增强提示词
func buildPrompt(template, question string, passages []Passage) string {
	prompt := template
	prompt = strings.ReplaceAll(prompt, "{{.Context}}", formatPassages(passages))
	prompt = strings.ReplaceAll(prompt, "{{.Question}}", question)
	return prompt
}

// formatPassages 把证据段落格式化为带编号的上下文
func formatPassages(passages []Passage) string {
	var sb strings.Builder
	for i, p := range passages {
		sb.WriteString(fmt.Sprintf("【%d】%s\n\n", i+1, p.Text))
	}
	return sb.String()
}

// extractCitations 从回答文本中提取被引用的证据段落
// 回答中没有编号标注时把全部证据段落作为引用，编号越界的标注被忽略
func extractCitations(answerText string, passages []Passage) []Citation {
	matches := citationMarkerRe.FindAllStringSubmatch(answerText, -1)

	cited := make([]int, 0, len(matches))
	seen := make(map[int]bool)
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(passages) {
			continue
		}
		if !seen[n] {
			seen[n] = true
			cited = append(cited, n)
		}
	}

	if len(cited) == 0 {
		cited = make([]int, len(passages))
		for i := range passages {
			cited[i] = i + 1
		}
	}

	citations := make([]Citation, 0, len(cited))
	for _, n := range cited {
		p := passages[n-1]
		citations = append(citations, Citation{
			Index:      n,
			ChunkID:    p.ChunkID,
			DocumentID: p.DocumentID,
			Snippet:    snippet(p.Text, 160),
		})
	}
	return citations
}

// snippet 截取段落前若干个字符作为引用片段
func snippet(text string, maxRunes int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= maxRunes {
		return string(runes)
	}
	return string(runes[:maxRunes]) + "..."
}
