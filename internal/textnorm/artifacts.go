package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// 行级过滤阈值，对应OCR噪声行的统计特征
const (
	repeatedLineRatio   = 0.3  // 行在该比例以上的页面出现时视为页眉/页脚
	maxSymbolRatio      = 0.25 // 符号占比超过该值的行视为乱码
	minAlphaRatio       = 0.4  // 字母占比低于该值的行视为乱码
	minNoiseCleanRatio  = 0.25 // 有效字符占比低于该值的行视为噪声
	minEnglishWordCount = 3    // 行内英文单词达到该数量时跳过噪声判定
)

var (
	// ligatureReplacer 印刷连字还原
	ligatureReplacer = strings.NewReplacer(
		"ﬁ", "fi", "ﬂ", "fl", "ﬃ", "ffi", "ﬄ", "ffl", "ﬅ", "ft", "ﬆ", "st",
	)

	devanagariPattern    = regexp.MustCompile(`[\x{0900}-\x{097F}]+`)
	intrusiveSymbolRe    = regexp.MustCompile(`(\w)[\^<>\*~¬¦§¶]+(\w)`)
	spacedLettersRe      = regexp.MustCompile(`\b(?:\w ){2,}\w\b`)
	hyphenBreakRe        = regexp.MustCompile(`-\s*\n\s*`)
	pageArtifactRe       = regexp.MustCompile(`(?i)(\d+\s*\|\s*page|\[\s*page\s+\d+\s*\]|page\s+\d+\s+of\s+\d+)`)
	standaloneNumberRe   = regexp.MustCompile(`^\s*\d+\s*$`)
	whitespaceCollapseRe = regexp.MustCompile(`\s+`)
	wordRe               = regexp.MustCompile(`[a-zA-Z]+`)
)

// ArtifactCleaner OCR伪影清洗器
// 归一化之前的固定预处理，防止页码、断字、乱码行污染分类器输入
type ArtifactCleaner struct {
	protectedTerms []string // 出现这些术语的行不会被当作页眉/页脚删除
}

// NewArtifactCleaner 创建伪影清洗器
// protectedTerms为空时使用内置术语表
func NewArtifactCleaner(protectedTerms []string) *ArtifactCleaner {
	if len(protectedTerms) == 0 {
		protectedTerms = DefaultAyurvedaTerms()
	}
	lowered := make([]string, 0, len(protectedTerms))
	for _, t := range protectedTerms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			lowered = append(lowered, t)
		}
	}
	return &ArtifactCleaner{protectedTerms: lowered}
}

// CleanPages 对整篇文档做伪影清洗
// 跨页统计重复行后逐页清洗，输入不被修改
func (c *ArtifactCleaner) CleanPages(pages []Page) []Page {
	repeated := c.detectRepeatedLines(pages)

	cleaned := make([]Page, 0, len(pages))
	for _, p := range pages {
		cleaned = append(cleaned, Page{
			Number: p.Number,
			Text:   c.CleanText(p.Text, repeated),
		})
	}
	return cleaned
}

// CleanText 清洗单页文本
func (c *ArtifactCleaner) CleanText(text string, repeatedLines map[string]bool) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	// Unicode规范化与连字还原先行，后续正则都工作在NFKC形式上
	text = norm.NFKC.String(text)
	text = ligatureReplacer.Replace(text)
	text = stripControlRunes(text)
	text = hyphenBreakRe.ReplaceAllString(text, "")

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = devanagariPattern.ReplaceAllString(line, " ")
		line = pageArtifactRe.ReplaceAllString(line, " ")

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || standaloneNumberRe.MatchString(trimmed) {
			continue
		}
		if repeatedLines[strings.ToLower(trimmed)] && !c.containsProtectedTerm(trimmed) {
			continue
		}
		if isGibberishLine(trimmed) || isNoiseLine(trimmed) {
			continue
		}
		kept = append(kept, trimmed)
	}
	if len(kept) == 0 {
		return ""
	}

	joined := strings.Join(kept, " ")

	// 词内符号可能连续出现，循环替换直到稳定
	for {
		replaced := intrusiveSymbolRe.ReplaceAllString(joined, "$1$2")
		if replaced == joined {
			break
		}
		joined = replaced
	}

	// 拼接被OCR拆散的字母（"s u s h r u t a" -> "sushruta"）
	joined = spacedLettersRe.ReplaceAllStringFunc(joined, func(m string) string {
		return strings.ReplaceAll(m, " ", "")
	})

	joined = whitespaceCollapseRe.ReplaceAllString(joined, " ")
	joined = collapseRepeatedWords(joined)

	return strings.TrimSpace(joined)
}

// detectRepeatedLines 统计跨页重复出现的行（疑似页眉/页脚）
func (c *ArtifactCleaner) detectRepeatedLines(pages []Page) map[string]bool {
	if len(pages) < 2 {
		return nil
	}

	counts := make(map[string]int)
	for _, p := range pages {
		unique := make(map[string]bool)
		for _, line := range strings.Split(p.Text, "\n") {
			line = strings.ToLower(strings.TrimSpace(line))
			if line != "" {
				unique[line] = true
			}
		}
		for line := range unique {
			counts[line]++
		}
	}

	repeated := make(map[string]bool)
	for line, count := range counts {
		if count >= 2 && float64(count)/float64(len(pages)) >= repeatedLineRatio {
			repeated[line] = true
		}
	}
	return repeated
}

// containsProtectedTerm 判断行内是否包含受保护术语
func (c *ArtifactCleaner) containsProtectedTerm(line string) bool {
	lower := strings.ToLower(FoldDiacritics(line))
	for _, term := range c.protectedTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// isGibberishLine 按符号与字母占比识别乱码行
func isGibberishLine(line string) bool {
	if line == "" {
		return true
	}

	total := 0
	symbols := 0
	alpha := 0
	for _, r := range line {
		total++
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			alpha++
		case r >= '0' && r <= '9', unicode.IsSpace(r):
		case strings.ContainsRune(`.,;:'"!?()-`, r):
		case unicode.IsLetter(r):
			// IAST变音字母算作字母而不是符号
			alpha++
		default:
			symbols++
		}
	}

	return float64(symbols)/float64(total) > maxSymbolRatio ||
		float64(alpha)/float64(total) < minAlphaRatio
}

// isNoiseLine 识别有效字符占比过低的OCR残渣行
func isNoiseLine(line string) bool {
	if len(wordRe.FindAllString(line, minEnglishWordCount)) >= minEnglishWordCount {
		return false
	}

	clean := 0
	for _, r := range line {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			clean++
		}
	}
	if clean == 0 {
		return true
	}

	return float64(clean)/float64(len([]rune(line))) < minNoiseCleanRatio
}

// stripControlRunes 去掉控制字符与替换字符，保留换行供行级过滤使用
func stripControlRunes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || r == '�' {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// collapseRepeatedWords 折叠连续重复的单词（大小写不敏感）
func collapseRepeatedWords(s string) string {
	fields := strings.Fields(s)
	if len(fields) < 2 {
		return s
	}

	out := fields[:1]
	for _, f := range fields[1:] {
		if strings.EqualFold(f, out[len(out)-1]) {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}
