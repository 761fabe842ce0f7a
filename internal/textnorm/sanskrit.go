package textnorm

import (
	"sort"
	"sync"
	"unicode"
)

// 梵文纠错器默认参数
const (
	defaultMaxCandidates = 50   // 三元组召回的候选上限
	defaultMaxDistance   = 2    // 最大可信编辑距离，超出则弃权
	defaultMinTokenRunes = 3    // 短于该长度的词元不做纠错
	correctionCacheSize  = 4096 // 纠错结果缓存上限
)

// SanskritCorrectorConfig 梵文纠错器配置
type SanskritCorrectorConfig struct {
	MaxDistance   int // 最大可信编辑距离
	MaxCandidates int // 候选召回上限
	MinTokenRunes int // 参与纠错的最小词元长度
}

// DefaultSanskritCorrectorConfig 返回默认配置
func DefaultSanskritCorrectorConfig() SanskritCorrectorConfig {
	return SanskritCorrectorConfig{
		MaxDistance:   defaultMaxDistance,
		MaxCandidates: defaultMaxCandidates,
		MinTokenRunes: defaultMinTokenRunes,
	}
}

// sanskritEntry 词典条目在索引中的形式
type sanskritEntry struct {
	canonical string // 规范词形（含变音符）
	folded    string // 音译折叠词形
	freq      int    // 词典频次
}

// SanskritCorrector 梵文纠错器
// 用字符三元组倒排索引召回候选，在折叠词形上计算编辑距离
// 平局规则：最小距离 -> 最高频次 -> 字典序，保证输出确定
type SanskritCorrector struct {
	config  SanskritCorrectorConfig
	entries []sanskritEntry
	index   map[string][]int // 三元组 -> 条目下标
	exact   map[string]int   // 折叠词形 -> 条目下标（频次最高者）

	mu    sync.RWMutex
	cache map[string]CorrectionResult
}

// NewSanskritCorrector 创建梵文纠错器
func NewSanskritCorrector(lexicon *Lexicon, config SanskritCorrectorConfig) (*SanskritCorrector, error) {
	if lexicon == nil || lexicon.Len() == 0 {
		return nil, NewNormError(ErrCodeEmptyLexicon, "sanskrit lexicon is empty")
	}
	if config.MaxDistance <= 0 {
		config.MaxDistance = defaultMaxDistance
	}
	if config.MaxCandidates <= 0 {
		config.MaxCandidates = defaultMaxCandidates
	}
	if config.MinTokenRunes <= 0 {
		config.MinTokenRunes = defaultMinTokenRunes
	}

	c := &SanskritCorrector{
		config: config,
		index:  make(map[string][]int),
		exact:  make(map[string]int),
		cache:  make(map[string]CorrectionResult),
	}

	// 词典已按字典序排序，索引构建顺序确定
	for _, w := range lexicon.Words() {
		folded := FoldDiacritics(w)
		if folded == "" {
			continue
		}
		idx := len(c.entries)
		c.entries = append(c.entries, sanskritEntry{
			canonical: w,
			folded:    folded,
			freq:      lexicon.Frequency(w),
		})

		for _, tri := range extractTrigrams(folded) {
			c.index[tri] = append(c.index[tri], idx)
		}

		if prev, ok := c.exact[folded]; !ok || c.entries[idx].freq > c.entries[prev].freq {
			c.exact[folded] = idx
		}
	}

	return c, nil
}

// Name 返回纠错器名称
func (c *SanskritCorrector) Name() string {
	return "sanskrit"
}

// Correct 对单个梵文词元做纠错
// 没有词典条目落在距离阈值内时原样返回，系统不在信任阈值外捏造纠正
func (c *SanskritCorrector) Correct(token string) CorrectionResult {
	unchanged := CorrectionResult{Corrected: token, Changed: false, Distance: 0}
	if token == "" {
		return unchanged
	}

	folded := FoldDiacritics(token)
	if len([]rune(folded)) < c.config.MinTokenRunes {
		return unchanged
	}

	c.mu.RLock()
	cached, ok := c.cache[token]
	c.mu.RUnlock()
	if ok {
		return cached
	}

	result := c.correct(token, folded)

	c.mu.Lock()
	if len(c.cache) >= correctionCacheSize {
		c.cache = make(map[string]CorrectionResult)
	}
	c.cache[token] = result
	c.mu.Unlock()

	return result
}

// correct 执行实际的候选召回与打分
func (c *SanskritCorrector) correct(token, folded string) CorrectionResult {
	// 折叠词形精确命中时直接采用规范词形
	if idx, ok := c.exact[folded]; ok {
		canonical := matchCapitalization(token, c.entries[idx].canonical)
		if canonical == token {
			return CorrectionResult{Corrected: token, Changed: false, Distance: 0}
		}
		return CorrectionResult{Corrected: canonical, Changed: true, Distance: 0}
	}

	best := -1
	bestDistance := c.config.MaxDistance + 1

	for _, idx := range c.candidates(folded) {
		entry := c.entries[idx]
		d := EditDistance(folded, entry.folded)
		if d > c.config.MaxDistance {
			continue
		}

		if best < 0 ||
			d < bestDistance ||
			(d == bestDistance && entry.freq > c.entries[best].freq) ||
			(d == bestDistance && entry.freq == c.entries[best].freq && entry.canonical < c.entries[best].canonical) {
			best = idx
			bestDistance = d
		}
	}

	if best < 0 {
		return CorrectionResult{Corrected: token, Changed: false, Distance: 0}
	}

	return CorrectionResult{
		Corrected: matchCapitalization(token, c.entries[best].canonical),
		Changed:   true,
		Distance:  bestDistance,
	}
}

// candidates 通过三元组倒排索引召回候选条目下标
func (c *SanskritCorrector) candidates(folded string) []int {
	overlaps := make(map[int]int)
	for _, tri := range extractTrigrams(folded) {
		for _, idx := range c.index[tri] {
			overlaps[idx]++
		}
	}

	if len(overlaps) == 0 {
		return nil
	}

	idxs := make([]int, 0, len(overlaps))
	for idx := range overlaps {
		idxs = append(idxs, idx)
	}

	// 重合度降序，下标升序兜底，排序结果确定
	sort.Slice(idxs, func(i, j int) bool {
		if overlaps[idxs[i]] != overlaps[idxs[j]] {
			return overlaps[idxs[i]] > overlaps[idxs[j]]
		}
		return idxs[i] < idxs[j]
	})

	if len(idxs) > c.config.MaxCandidates {
		idxs = idxs[:c.config.MaxCandidates]
	}
	return idxs
}

// matchCapitalization 让纠正结果沿用原词的首字母大小写
func matchCapitalization(original, corrected string) string {
	or := []rune(original)
	cr := []rune(corrected)
	if len(or) == 0 || len(cr) == 0 {
		return corrected
	}
	if unicode.IsUpper(or[0]) && unicode.IsLower(cr[0]) {
		cr[0] = unicode.ToUpper(cr[0])
		return string(cr)
	}
	return corrected
}
