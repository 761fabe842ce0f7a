package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSanskritLexicon 创建测试用梵文词典
func newTestSanskritLexicon(t *testing.T) *Lexicon {
	t.Helper()
	return NewLexicon(map[string]int{
		"vāta":   100,
		"pitta":  90,
		"kapha":  80,
		"doṣa":   70,
		"agni":   50,
		"āma":    10,
		"śleṣma": 5,
	})
}

// newTestEnglishLexicon 创建测试用英文词表
func newTestEnglishLexicon(t *testing.T) *Lexicon {
	t.Helper()
	return NewLexicon(map[string]int{
		"the":       1000,
		"body":      500,
		"health":    300,
		"balance":   200,
		"balances":  150,
		"digestion": 150,
		"energy":    100,
		"governs":   80,
		"movement":  80,
		"what":      400,
		"great":     120,
		"surgeon":   60,
	})
}

// newTestClassifier 从测试词典构建分类器
func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	classifier, err := NewClassifierFromLexicons(newTestSanskritLexicon(t), newTestEnglishLexicon(t))
	require.NoError(t, err, "应该能从词典构建分类器")
	return classifier
}

// TestClassifierFastPath 测试空词元和纯标点的快速路径
func TestClassifierFastPath(t *testing.T) {
	classifier := newTestClassifier(t)

	t.Run("empty token", func(t *testing.T) {
		cls := classifier.Classify("")
		assert.Equal(t, LabelNoise, cls.Label, "空词元应该判为噪声")
		assert.Equal(t, 1.0, cls.Confidence, "快速路径置信度应该为1.0")
	})

	t.Run("pure punctuation", func(t *testing.T) {
		for _, token := range []string{"...", "!?", "---", "@@@"} {
			cls := classifier.Classify(token)
			assert.Equal(t, LabelNoise, cls.Label, "纯标点词元应该判为噪声: %s", token)
			assert.Equal(t, 1.0, cls.Confidence)
		}
	})

	t.Run("pure digits", func(t *testing.T) {
		cls := classifier.Classify("2024")
		assert.Equal(t, LabelNoise, cls.Label, "纯数字词元应该判为噪声")
		assert.Equal(t, 1.0, cls.Confidence)
	})
}

// TestClassifierLabels 测试分类标签
func TestClassifierLabels(t *testing.T) {
	classifier := newTestClassifier(t)

	t.Run("sanskrit tokens", func(t *testing.T) {
		for _, token := range []string{"vāta", "pitta", "kapha", "doṣa"} {
			cls := classifier.Classify(token)
			assert.Equal(t, LabelSanskrit, cls.Label, "词典内梵文词应该判为梵文: %s", token)
		}
	})

	t.Run("english tokens", func(t *testing.T) {
		for _, token := range []string{"the", "digestion", "health", "movement"} {
			cls := classifier.Classify(token)
			assert.Equal(t, LabelEnglish, cls.Label, "词典内英文词应该判为英文: %s", token)
		}
	})

	t.Run("ocr corrupted sanskrit", func(t *testing.T) {
		// 丢失变音符的OCR变体仍应路由到梵文纠错器
		cls := classifier.Classify("Vaata")
		assert.Equal(t, LabelSanskrit, cls.Label, "丢失变音符的梵文变体应该判为梵文")
		assert.GreaterOrEqual(t, cls.Confidence, 0.65, "置信度应该超过路由阈值")
	})
}

// TestClassifierConfidenceRange 测试置信度取值范围
func TestClassifierConfidenceRange(t *testing.T) {
	classifier := newTestClassifier(t)

	tokens := []string{"", "...", "vāta", "Vaata", "the", "xqzjw", "a", "digestion", "42", "doṣa"}
	for _, token := range tokens {
		cls := classifier.Classify(token)
		assert.GreaterOrEqual(t, cls.Confidence, 0.0, "置信度不能小于0: %s", token)
		assert.LessOrEqual(t, cls.Confidence, 1.0, "置信度不能大于1: %s", token)
		assert.Contains(t, []ScriptLabel{LabelSanskrit, LabelEnglish, LabelNoise}, cls.Label,
			"标签必须是三个合法取值之一: %s", token)
	}
}

// TestClassifierDeterminism 测试分类结果的确定性
func TestClassifierDeterminism(t *testing.T) {
	classifier := newTestClassifier(t)

	tokens := []string{"vāta", "Vaata", "digestion", "xqzjw"}
	for _, token := range tokens {
		first := classifier.Classify(token)
		for i := 0; i < 5; i++ {
			again := classifier.Classify(token)
			assert.Equal(t, first, again, "同一输入的分类结果必须完全一致: %s", token)
		}
	}
}

// TestClassifierFromEmptyLexicon 测试空词典的错误处理
func TestClassifierFromEmptyLexicon(t *testing.T) {
	_, err := NewClassifierFromLexicons(NewLexicon(nil), newTestEnglishLexicon(t))
	require.Error(t, err, "空词典应该返回错误")

	var normErr NormError
	require.ErrorAs(t, err, &normErr)
	assert.Equal(t, ErrCodeEmptyLexicon, normErr.Code)
}
