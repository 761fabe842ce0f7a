package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// defaultMinConfidence 分类置信度阈值
// 低于阈值的结果按噪声策略处理：把梵文词元误路由到英文纠错器比丢弃更糟
const defaultMinConfidence = 0.65

// NormalizerOption 归一化器配置选项
type NormalizerOption func(*Normalizer)

// WithMinConfidence 设置分类置信度阈值
func WithMinConfidence(threshold float64) NormalizerOption {
	return func(n *Normalizer) {
		if threshold > 0 && threshold <= 1 {
			n.minConfidence = threshold
		}
	}
}

// WithNormalizerLogger 设置日志记录器
func WithNormalizerLogger(logger *logrus.Logger) NormalizerOption {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithEntityTerms 设置实体提取使用的术语表
func WithEntityTerms(terms []string) NormalizerOption {
	return func(n *Normalizer) {
		if len(terms) > 0 {
			n.entityTerms = terms
		}
	}
}

// Normalizer 词元路由归一化器
// 组合分类器、两个纠错器和伪影清洗为一次无状态的按文档变换
// 所有变换都产生副本，不修改上游产物
type Normalizer struct {
	classifier    *Classifier
	sanskrit      Corrector
	english       Corrector
	cleaner       *ArtifactCleaner
	minConfidence float64
	entityTerms   []string
	logger        *logrus.Logger
}

// NewNormalizer 创建归一化器
func NewNormalizer(classifier *Classifier, sanskrit, english Corrector, opts ...NormalizerOption) (*Normalizer, error) {
	if classifier == nil {
		return nil, NewNormError(ErrCodeInvalidConfig, "classifier is required")
	}
	if sanskrit == nil || english == nil {
		return nil, NewNormError(ErrCodeInvalidConfig, "both correctors are required")
	}

	n := &Normalizer{
		classifier:    classifier,
		sanskrit:      sanskrit,
		english:       english,
		cleaner:       NewArtifactCleaner(nil),
		minConfidence: defaultMinConfidence,
		entityTerms:   DefaultAyurvedaTerms(),
		logger:        logrus.New(),
	}

	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// NormalizeDocument 对整篇文档做归一化
// 纠错日志作为返回值的一部分显式带出，并发处理多篇文档时日志不会交错
func (n *Normalizer) NormalizeDocument(docID string, pages []Page) (*NormalizedDocument, error) {
	if docID == "" {
		return nil, NewNormError(ErrCodeInvalidConfig, "document id is required")
	}

	cleaned := n.cleaner.CleanPages(pages)

	doc := &NormalizedDocument{
		DocumentID: docID,
		Pages:      make([]NormalizedPage, 0, len(cleaned)),
	}

	for _, page := range cleaned {
		text, tokens, entries := n.normalizeText(page.Number, page.Text)
		doc.Pages = append(doc.Pages, NormalizedPage{
			Number: page.Number,
			Text:   text,
			Tokens: tokens,
		})
		doc.Log = append(doc.Log, entries...)
	}

	doc.Entities = ExtractEntities(doc.Text(), n.entityTerms)

	n.logger.WithFields(logrus.Fields{
		"document_id": docID,
		"pages":       len(doc.Pages),
		"corrections": len(doc.Log),
		"entities":    len(doc.Entities),
	}).Info("Document normalized")

	return doc, nil
}

// NormalizeQuery 对用户查询做与索引时完全一致的归一化
// 索引和查询两侧的归一化不一致会静默降低检索质量
func (n *Normalizer) NormalizeQuery(query string) string {
	cleaned := n.cleaner.CleanText(query, nil)
	if cleaned == "" {
		// 查询短到被行级过滤吞掉时退回轻量清洗，问句本身不是OCR产物
		cleaned = strings.TrimSpace(whitespaceCollapseRe.ReplaceAllString(query, " "))
		if cleaned == "" {
			return ""
		}
	}

	text, _, _ := n.normalizeText(0, cleaned)
	return text
}

// normalizeText 对一段已清洗文本做词元路由
// 保留原文的空白与句界，只替换或丢弃词元本身
func (n *Normalizer) normalizeText(page int, text string) (string, []Token, []LogEntry) {
	if text == "" {
		return "", nil, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	var tokens []Token
	var entries []LogEntry

	pos := 0
	for pos < len(text) {
		r, width := decodeRune(text[pos:])
		if !isTokenRune(r) {
			// 分隔符原样保留空白和句读，其余符号视为OCR残留替换为空格
			if unicode.IsSpace(r) || isSentencePunct(r) {
				b.WriteRune(r)
			} else {
				b.WriteByte(' ')
			}
			pos += width
			continue
		}

		start := pos
		for pos < len(text) {
			r, width = decodeRune(text[pos:])
			if !isTokenRune(r) {
				break
			}
			pos += width
		}

		surface := text[start:pos]
		token := n.routeToken(page, surface, start, pos)
		tokens = append(tokens, token)

		switch token.Action {
		case ActionCorrected:
			b.WriteString(token.Corrected)
			entries = append(entries, LogEntry{
				Page:       page,
				Token:      surface,
				Label:      token.Label,
				Confidence: token.Confidence,
				Action:     ActionCorrected,
				Corrected:  token.Corrected,
				Distance:   token.Distance,
			})
		case ActionDiscarded:
			entries = append(entries, LogEntry{
				Page:       page,
				Token:      surface,
				Label:      token.Label,
				Confidence: token.Confidence,
				Action:     ActionDiscarded,
			})
		default:
			b.WriteString(surface)
		}
	}

	normalized := strings.TrimSpace(whitespaceCollapseRe.ReplaceAllString(b.String(), " "))
	return normalized, tokens, entries
}

// routeToken 单个词元的分类与纠错路由
func (n *Normalizer) routeToken(page int, surface string, start, end int) Token {
	cls := n.classifier.Classify(surface)

	token := Token{
		Surface:    surface,
		Start:      start,
		End:        end,
		Label:      cls.Label,
		Confidence: cls.Confidence,
	}

	// 低置信度按噪声策略处理
	if cls.Label != LabelNoise && cls.Confidence < n.minConfidence {
		token.Label = LabelNoise
		token.Action = ActionDiscarded
		return token
	}

	switch cls.Label {
	case LabelSanskrit:
		token = applyCorrection(token, n.sanskrit.Correct(surface))
	case LabelEnglish:
		token = applyCorrection(token, n.english.Correct(surface))
	default:
		token.Action = ActionDiscarded
	}

	return token
}

// applyCorrection 把纠错结果写入词元
func applyCorrection(token Token, result CorrectionResult) Token {
	if result.Changed {
		token.Action = ActionCorrected
		token.Corrected = result.Corrected
		token.Distance = result.Distance
	} else {
		token.Action = ActionUnchanged
	}
	return token
}

// isTokenRune 判断字符是否属于词元（字母或数字）
func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// isSentencePunct 判断字符是否为需要保留的句读符号
func isSentencePunct(r rune) bool {
	return strings.ContainsRune(`.,;:!?()'"-`, r)
}

// decodeRune 解码字符串首个rune
func decodeRune(s string) (rune, int) {
	return utf8.DecodeRuneInString(s)
}
