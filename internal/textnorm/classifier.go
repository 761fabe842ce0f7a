package textnorm

import (
	"encoding/json"
	"math"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// trigramPadding 字符三元组的边界填充符
const trigramPadding = "#"

// maxClassifierTokenLen 超过该长度的词元直接判为噪声
const maxClassifierTokenLen = 64

// classModel 单个类别的字符三元组统计模型
type classModel struct {
	logProbs map[string]float64 // 三元组 -> 对数概率（加一平滑）
	fallback float64            // 未登录三元组的对数概率
	prior    float64            // 类别先验的对数概率
}

// Classifier 文字/噪声分类器
// 基于字符三元组的对数似然模型，固定模型与输入下输出完全确定
type Classifier struct {
	sanskrit classModel
	english  classModel
}

// classifierArtifact 分类器模型文件的JSON结构
type classifierArtifact struct {
	Classes map[string]struct {
		Trigrams map[string]int `json:"trigrams"` // 三元组计数
		Samples  int            `json:"samples"`  // 训练样本数，用于先验
	} `json:"classes"`
}

// LoadClassifier 从JSON模型文件加载分类器
func LoadClassifier(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapNormError(err, ErrCodeArtifactNotFound)
	}

	var artifact classifierArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, WrapNormError(err, ErrCodeArtifactInvalid)
	}

	sk, skOK := artifact.Classes["sanskrit"]
	en, enOK := artifact.Classes["english"]
	if !skOK || !enOK {
		return nil, NewNormError(ErrCodeArtifactInvalid, "classifier artifact must define sanskrit and english classes")
	}

	total := sk.Samples + en.Samples
	if total == 0 {
		return nil, NewNormError(ErrCodeArtifactInvalid, "classifier artifact contains no training samples")
	}

	return &Classifier{
		sanskrit: buildClassModel(sk.Trigrams, float64(sk.Samples)/float64(total)),
		english:  buildClassModel(en.Trigrams, float64(en.Samples)/float64(total)),
	}, nil
}

// NewClassifierFromLexicons 直接从两部词典构建分类器
// 梵文类别同时用原始词形和折叠词形训练，以覆盖丢失变音符的OCR变体
func NewClassifierFromLexicons(sanskrit, english *Lexicon) (*Classifier, error) {
	if sanskrit == nil || sanskrit.Len() == 0 || english == nil || english.Len() == 0 {
		return nil, NewNormError(ErrCodeEmptyLexicon, "both lexicons are required to build a classifier")
	}

	skCounts := make(map[string]int)
	skSamples := 0
	for _, w := range sanskrit.Words() {
		f := sanskrit.Frequency(w)
		countTrigrams(skCounts, strings.ToLower(norm.NFC.String(w)), f)
		countTrigrams(skCounts, FoldDiacritics(w), f)
		skSamples += f
	}

	enCounts := make(map[string]int)
	enSamples := 0
	for _, w := range english.Words() {
		f := english.Frequency(w)
		countTrigrams(enCounts, strings.ToLower(norm.NFC.String(w)), f)
		enSamples += f
	}

	total := float64(skSamples + enSamples)
	return &Classifier{
		sanskrit: buildClassModel(skCounts, float64(skSamples)/total),
		english:  buildClassModel(enCounts, float64(enSamples)/total),
	}, nil
}

// Classify 对单个词元分类
// 空词元或纯标点走快速路径，直接返回噪声且置信度为1.0
func (c *Classifier) Classify(token string) Classification {
	letters := 0
	runes := 0
	for _, r := range token {
		runes++
		if unicode.IsLetter(r) {
			letters++
		}
	}

	// 快速路径：空词元、纯标点、纯数字不进模型
	if letters == 0 {
		return Classification{Label: LabelNoise, Confidence: 1.0}
	}

	// 过长或字母占比过低的词元视为OCR碎片
	if runes > maxClassifierTokenLen || float64(letters)/float64(runes) < 0.5 {
		return Classification{Label: LabelNoise, Confidence: 1.0}
	}

	normalized := strings.ToLower(norm.NFC.String(token))
	trigrams := extractTrigrams(normalized)
	if len(trigrams) == 0 {
		return Classification{Label: LabelNoise, Confidence: 1.0}
	}

	skScore := c.sanskrit.score(trigrams)
	enScore := c.english.score(trigrams)

	// 双类别softmax归一化得到置信度
	maxScore := math.Max(skScore, enScore)
	skExp := math.Exp(skScore - maxScore)
	enExp := math.Exp(enScore - maxScore)

	if skScore >= enScore {
		return Classification{Label: LabelSanskrit, Confidence: skExp / (skExp + enExp)}
	}
	return Classification{Label: LabelEnglish, Confidence: enExp / (skExp + enExp)}
}

// score 累加三元组对数概率与先验
func (m classModel) score(trigrams []string) float64 {
	s := m.prior
	for _, tri := range trigrams {
		if lp, ok := m.logProbs[tri]; ok {
			s += lp
		} else {
			s += m.fallback
		}
	}
	return s
}

// buildClassModel 从三元组计数构建对数概率模型
func buildClassModel(counts map[string]int, prior float64) classModel {
	total := 0
	for _, c := range counts {
		total += c
	}

	vocab := len(counts) + 1
	denom := float64(total + vocab)

	logProbs := make(map[string]float64, len(counts))
	for tri, c := range counts {
		logProbs[tri] = math.Log(float64(c+1) / denom)
	}

	if prior <= 0 {
		prior = 1e-9
	}

	return classModel{
		logProbs: logProbs,
		fallback: math.Log(1.0 / denom),
		prior:    math.Log(prior),
	}
}

// countTrigrams 统计单个词形的带权三元组计数
func countTrigrams(counts map[string]int, word string, weight int) {
	for _, tri := range extractTrigrams(word) {
		counts[tri] += weight
	}
}

// extractTrigrams 提取带边界填充的字符三元组
func extractTrigrams(word string) []string {
	if word == "" {
		return nil
	}
	padded := []rune(trigramPadding + word + trigramPadding)
	if len(padded) < 3 {
		return []string{string(padded)}
	}

	trigrams := make([]string, 0, len(padded)-2)
	for i := 0; i+3 <= len(padded); i++ {
		trigrams = append(trigrams, string(padded[i:i+3]))
	}
	return trigrams
}
