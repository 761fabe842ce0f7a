package textnorm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Lexicon 只读参考词典
// 进程启动时加载一次，跨请求共享，加载后不再修改
type Lexicon struct {
	freqs map[string]int // 规范词形 -> 频次
	words []string       // 按字典序排序的规范词形，保证遍历顺序确定
}

// NewLexicon 从词频表创建词典
func NewLexicon(freqs map[string]int) *Lexicon {
	lex := &Lexicon{
		freqs: make(map[string]int, len(freqs)),
		words: make([]string, 0, len(freqs)),
	}
	for w, f := range freqs {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if f < 1 {
			f = 1
		}
		if _, ok := lex.freqs[w]; !ok {
			lex.words = append(lex.words, w)
		}
		lex.freqs[w] = f
	}
	sort.Strings(lex.words)
	return lex
}

// LoadLexicon 从文件加载词典
// 支持两种格式：JSON对象（词形->频次）或纯文本（每行一个词，可选制表符分隔的频次）
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapNormError(err, ErrCodeArtifactNotFound)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var freqs map[string]int
		if err := json.Unmarshal(data, &freqs); err != nil {
			return nil, WrapNormError(err, ErrCodeArtifactInvalid)
		}
		return validateLexicon(NewLexicon(freqs), path)
	}

	freqs := make(map[string]int)
	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		word := line
		freq := 1
		if idx := strings.IndexByte(line, '\t'); idx > 0 {
			word = strings.TrimSpace(line[:idx])
			if n, err := strconv.Atoi(strings.TrimSpace(line[idx+1:])); err == nil {
				freq = n
			}
		}
		freqs[word] += freq
	}

	return validateLexicon(NewLexicon(freqs), path)
}

// validateLexicon 校验词典非空
func validateLexicon(lex *Lexicon, path string) (*Lexicon, error) {
	if lex.Len() == 0 {
		return nil, NewNormError(ErrCodeEmptyLexicon, fmt.Sprintf("lexicon %s contains no entries", path))
	}
	return lex, nil
}

// Len 返回词典大小
func (l *Lexicon) Len() int {
	return len(l.words)
}

// Words 返回按字典序排序的全部词形
func (l *Lexicon) Words() []string {
	return l.words
}

// Frequency 返回词形的频次，不存在时返回0
func (l *Lexicon) Frequency(word string) int {
	return l.freqs[word]
}

// Contains 判断词形是否存在（区分大小写）
func (l *Lexicon) Contains(word string) bool {
	_, ok := l.freqs[word]
	return ok
}

// FoldDiacritics 音译折叠：NFD分解后去掉组合变音符并转小写
// 索引和查询必须使用同一折叠函数，否则检索质量会静默退化
func FoldDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// EditDistance 计算两个字符串的Levenshtein编辑距离（按rune）
func EditDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// min3 返回三个整数中的最小值
func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
