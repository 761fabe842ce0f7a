package textnorm

import (
	"strings"
	"sync"
)

// EnglishCorrectorConfig 英文纠错器配置
type EnglishCorrectorConfig struct {
	MaxDistance   int // 最大可信编辑距离
	MinTokenRunes int // 参与纠错的最小词元长度
}

// DefaultEnglishCorrectorConfig 返回默认配置
func DefaultEnglishCorrectorConfig() EnglishCorrectorConfig {
	return EnglishCorrectorConfig{
		MaxDistance:   defaultMaxDistance,
		MinTokenRunes: defaultMinTokenRunes,
	}
}

// EnglishCorrector 英文纠错器
// 基于删除变体预索引的近似匹配：词典每个词形预生成距离阈值内的删除变体，
// 查询时只需生成输入的删除变体做哈希查找，查找开销与词典规模无关
// 平局规则与梵文纠错器一致：最小距离 -> 最高频次 -> 字典序
type EnglishCorrector struct {
	config  EnglishCorrectorConfig
	freqs   map[string]int      // 小写词形 -> 频次
	deletes map[string][]string // 删除变体 -> 可能的原词形（字典序）

	mu    sync.RWMutex
	cache map[string]CorrectionResult
}

// NewEnglishCorrector 创建英文纠错器
func NewEnglishCorrector(wordlist *Lexicon, config EnglishCorrectorConfig) (*EnglishCorrector, error) {
	if wordlist == nil || wordlist.Len() == 0 {
		return nil, NewNormError(ErrCodeEmptyLexicon, "english wordlist is empty")
	}
	if config.MaxDistance <= 0 {
		config.MaxDistance = defaultMaxDistance
	}
	if config.MinTokenRunes <= 0 {
		config.MinTokenRunes = defaultMinTokenRunes
	}

	c := &EnglishCorrector{
		config:  config,
		freqs:   make(map[string]int, wordlist.Len()),
		deletes: make(map[string][]string),
		cache:   make(map[string]CorrectionResult),
	}

	// 词典已按字典序排序，删除变体列表天然有序
	for _, w := range wordlist.Words() {
		lower := strings.ToLower(w)
		if lower == "" {
			continue
		}
		if _, seen := c.freqs[lower]; seen {
			if f := wordlist.Frequency(w); f > c.freqs[lower] {
				c.freqs[lower] = f
			}
			continue
		}
		c.freqs[lower] = wordlist.Frequency(w)

		for variant := range deleteVariants(lower, config.MaxDistance) {
			c.deletes[variant] = append(c.deletes[variant], lower)
		}
	}

	return c, nil
}

// Name 返回纠错器名称
func (c *EnglishCorrector) Name() string {
	return "english"
}

// Correct 对单个英文词元做纠错
// 距离阈值内无词典命中时原样返回changed=false
func (c *EnglishCorrector) Correct(token string) CorrectionResult {
	unchanged := CorrectionResult{Corrected: token, Changed: false, Distance: 0}
	if token == "" {
		return unchanged
	}

	lower := strings.ToLower(token)
	if len([]rune(lower)) < c.config.MinTokenRunes {
		return unchanged
	}

	// 词典内的词形不做改动
	if _, ok := c.freqs[lower]; ok {
		return unchanged
	}

	c.mu.RLock()
	cached, ok := c.cache[token]
	c.mu.RUnlock()
	if ok {
		return cached
	}

	result := c.correct(token, lower)

	c.mu.Lock()
	if len(c.cache) >= correctionCacheSize {
		c.cache = make(map[string]CorrectionResult)
	}
	c.cache[token] = result
	c.mu.Unlock()

	return result
}

// correct 通过删除变体召回候选并验证真实编辑距离
func (c *EnglishCorrector) correct(token, lower string) CorrectionResult {
	seen := make(map[string]bool)
	best := ""
	bestDistance := c.config.MaxDistance + 1
	bestFreq := -1

	for variant := range deleteVariants(lower, c.config.MaxDistance) {
		for _, candidate := range c.deletes[variant] {
			if seen[candidate] {
				continue
			}
			seen[candidate] = true

			d := EditDistance(lower, candidate)
			if d > c.config.MaxDistance {
				continue
			}

			freq := c.freqs[candidate]
			if best == "" ||
				d < bestDistance ||
				(d == bestDistance && freq > bestFreq) ||
				(d == bestDistance && freq == bestFreq && candidate < best) {
				best = candidate
				bestDistance = d
				bestFreq = freq
			}
		}
	}

	if best == "" {
		return CorrectionResult{Corrected: token, Changed: false, Distance: 0}
	}

	return CorrectionResult{
		Corrected: matchCapitalization(token, best),
		Changed:   true,
		Distance:  bestDistance,
	}
}

// deleteVariants 生成距离maxDistance以内的全部删除变体（含自身）
func deleteVariants(word string, maxDistance int) map[string]bool {
	variants := map[string]bool{word: true}

	frontier := []string{word}
	for depth := 0; depth < maxDistance; depth++ {
		var next []string
		for _, w := range frontier {
			runes := []rune(w)
			if len(runes) <= 1 {
				continue
			}
			for i := range runes {
				variant := string(runes[:i]) + string(runes[i+1:])
				if !variants[variant] {
					variants[variant] = true
					next = append(next, variant)
				}
			}
		}
		frontier = next
	}

	return variants
}
