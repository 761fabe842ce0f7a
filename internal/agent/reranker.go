package agent

import (
	"sort"
	"strings"
	"unicode"

	"github.com/fyerfyer/ayurveda-qa-system/internal/textnorm"
	"github.com/fyerfyer/ayurveda-qa-system/internal/vectordb"
)

// Reranker 重排序代理
// 用查询词项与块文本的词面重合度对向量检索结果做二次打分
// 只收窄候选集，从不添加新候选，同分候选保持检索时的相对顺序
type Reranker struct {
	// 词面重合度与向量相似度的混合权重，0为纯向量分，1为纯词面分
	lexicalWeight float64
	// 重排后保留的候选数量上限，0表示不收窄
	keep int
}

// RerankerOption 重排序配置选项
type RerankerOption func(*Reranker)

// WithLexicalWeight 设置词面重合度的混合权重
func WithLexicalWeight(w float64) RerankerOption {
	return func(r *Reranker) {
		if w >= 0 && w <= 1 {
			r.lexicalWeight = w
		}
	}
}

// WithKeep 设置重排后保留的候选数量
func WithKeep(n int) RerankerOption {
	return func(r *Reranker) {
		if n >= 0 {
			r.keep = n
		}
	}
}

// NewReranker 创建重排序代理
func NewReranker(opts ...RerankerOption) *Reranker {
	r := &Reranker{
		lexicalWeight: 0.4,
		keep:          5,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RankedResult 带重排分数的候选块
type RankedResult struct {
	vectordb.SearchResult
	RerankScore float64
}

// Rerank 对检索结果重新排序
// 输入为空时返回空切片
func (r *Reranker) Rerank(query string, results []vectordb.SearchResult) []RankedResult {
	if len(results) == 0 {
		return []RankedResult{}
	}

	queryTerms := termSet(query)

	ranked := make([]RankedResult, len(results))
	for i, res := range results {
		lexical := overlapScore(queryTerms, res.Entry.Text)
		ranked[i] = RankedResult{
			SearchResult: res,
			RerankScore:  (1-r.lexicalWeight)*float64(res.Score) + r.lexicalWeight*lexical,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RerankScore > ranked[j].RerankScore
	})

	if r.keep > 0 && len(ranked) > r.keep {
		ranked = ranked[:r.keep]
	}
	return ranked
}

// termSet 把文本切成折叠变音符号后的小写词项集合
func termSet(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, field := range splitTerms(text) {
		if len(field) >= 2 {
			terms[field] = true
		}
	}
	return terms
}

// overlapScore 计算查询词项在块文本中的覆盖比例
func overlapScore(queryTerms map[string]bool, chunkText string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}

	chunkTerms := termSet(chunkText)
	hits := 0
	for term := range queryTerms {
		if chunkTerms[term] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTerms))
}

// splitTerms 按非字母数字字符切分并折叠变音符号
func splitTerms(text string) []string {
	folded := textnorm.FoldDiacritics(text)
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
