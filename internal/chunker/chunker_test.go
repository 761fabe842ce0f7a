package chunker

import (
	"strings"
	"testing"

	"github.com/fyerfyer/ayurveda-qa-system/internal/textnorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeSentence 构造指定字符数的句子
func makeSentence(n int, word string) string {
	var b strings.Builder
	for b.Len() < n-1 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
	s := b.String()
	if len(s) > n-1 {
		s = s[:n-1]
	}
	return s + "."
}

// TestChunkerSentenceBoundaries 测试句子边界分块
func TestChunkerSentenceBoundaries(t *testing.T) {
	c, err := New(Config{MaxChunkChars: 100, MinChunkChars: 10, OverlapChars: 20})
	require.NoError(t, err, "应该能创建分块器")

	t.Run("three sentences two chunks", func(t *testing.T) {
		// 三句合计超过上限但单句都不超，应该得到两个带重叠的块
		s1 := makeSentence(40, "vata")
		s2 := makeSentence(40, "pitta")
		s3 := makeSentence(40, "kapha")
		text := s1 + " " + s2 + " " + s3

		chunks := c.ChunkText("doc-1", text)
		require.Len(t, chunks, 2, "三个句子应该分成两个块")

		assert.True(t, strings.HasSuffix(chunks[0].Text, "."), "块应该结束在句子边界")
		assert.True(t, strings.HasSuffix(chunks[1].Text, "."), "块应该结束在句子边界")
		assert.False(t, chunks[0].Overlap, "第一块没有重叠前缀")
		assert.True(t, chunks[1].Overlap, "第二块应该带重叠前缀")
	})

	t.Run("short text single chunk", func(t *testing.T) {
		chunks := c.ChunkText("doc-1", "Vata governs movement.")
		require.Len(t, chunks, 1)
		assert.Equal(t, "Vata governs movement.", chunks[0].Text)
		assert.False(t, chunks[0].Overlap)
		assert.Equal(t, 0, chunks[0].Start)
	})

	t.Run("empty text", func(t *testing.T) {
		assert.Empty(t, c.ChunkText("doc-1", ""))
		assert.Empty(t, c.ChunkText("doc-1", "   "))
	})
}

// TestChunkerOverlap 测试重叠前缀
func TestChunkerOverlap(t *testing.T) {
	c, err := New(Config{MaxChunkChars: 100, MinChunkChars: 10, OverlapChars: 20})
	require.NoError(t, err)

	var parts []string
	for i := 0; i < 6; i++ {
		parts = append(parts, makeSentence(40, "dosha"))
	}
	chunks := c.ChunkText("doc-2", strings.Join(parts, " "))
	require.Greater(t, len(chunks), 2, "长文本应该产生多个块")

	prevCore := ""
	for i, chunk := range chunks {
		if i == 0 {
			assert.False(t, chunk.Overlap)
			prevCore = chunk.Text
			continue
		}

		// 第一块之外的每个块都必须带重叠前缀
		require.True(t, chunk.Overlap, "块 %d 应该带重叠前缀", i)

		overlap := prevCore
		if runes := []rune(prevCore); len(runes) > 20 {
			overlap = strings.TrimSpace(string(runes[len(runes)-20:]))
		}
		assert.True(t, strings.HasPrefix(chunk.Text, overlap),
			"块 %d 的前缀应该是前一块的尾部", i)

		prevCore = strings.TrimSpace(strings.TrimPrefix(chunk.Text, overlap))
	}
}

// TestChunkerDeterminism 测试分块的确定性与幂等
func TestChunkerDeterminism(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	var parts []string
	for i := 0; i < 30; i++ {
		parts = append(parts, makeSentence(120, "agni"))
	}
	text := strings.Join(parts, " ")

	first := c.ChunkText("doc-3", text)
	require.NotEmpty(t, first)

	for i := 0; i < 3; i++ {
		again := c.ChunkText("doc-3", text)
		assert.Equal(t, first, again, "同一文本同一参数必须得到同一块序列")
	}

	t.Run("ids stable across documents", func(t *testing.T) {
		assert.Equal(t, ChunkID("doc-a", 0, 100), ChunkID("doc-a", 0, 100))
		assert.NotEqual(t, ChunkID("doc-a", 0, 100), ChunkID("doc-b", 0, 100), "不同文档的块ID必须不同")
		assert.NotEqual(t, ChunkID("doc-a", 0, 100), ChunkID("doc-a", 0, 101), "不同偏移的块ID必须不同")
	})
}

// TestChunkerOversizedSentence 测试超长单句的硬切
func TestChunkerOversizedSentence(t *testing.T) {
	c, err := New(Config{MaxChunkChars: 100, MinChunkChars: 10, OverlapChars: 20})
	require.NoError(t, err)

	long := strings.Repeat("a", 249) + "."
	chunks := c.ChunkText("doc-4", long)
	require.Len(t, chunks, 3, "250字符的单句在上限100下应该硬切成3块")

	assert.LessOrEqual(t, len([]rune(chunks[0].Text)), 100, "硬切块不能超过上限")
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 100, chunks[0].End)
}

// TestChunkerSmallMiddlePiece 测试后继装不下时低于下限的中间块
// 上限优先于下限：合并会突破上限时中间块保留原样
func TestChunkerSmallMiddlePiece(t *testing.T) {
	c, err := New(Config{MaxChunkChars: 100, MinChunkChars: 40, OverlapChars: 0})
	require.NoError(t, err)

	// 230字符的超长句硬切出一个30字符的尾片段，后面跟一个90字符的句子
	long := strings.Repeat("a", 229) + "."
	text := long + " " + makeSentence(90, "pitta")

	chunks := c.ChunkText("doc-6", text)
	require.Len(t, chunks, 4)

	for i, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk.Text)), 100, "块 %d 不能超过上限", i)
	}

	assert.Equal(t, 30, len([]rune(chunks[2].Text)), "装不进后继的短块应该保留原样")
	assert.Equal(t, 90, len([]rune(chunks[3].Text)))

	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Start, chunks[i-1].Start, "块偏移必须单调递增")
	}
}

// TestChunkerExactOffsets 测试块偏移精确指向原文字符
// 句子之间有多余空白时Start必须落在首个非空白字符上
func TestChunkerExactOffsets(t *testing.T) {
	c, err := New(Config{MaxChunkChars: 15, MinChunkChars: 1, OverlapChars: 0})
	require.NoError(t, err)

	text := "Vata moves.  Pitta burns.   Agni digests."
	runes := []rune(text)

	chunks := c.ChunkText("doc-7", text)
	require.Len(t, chunks, 3, "三个短句在上限15下应该各成一块")

	for i, chunk := range chunks {
		require.Less(t, chunk.End, len(runes)+1)
		assert.Equal(t, chunk.Text, string(runes[chunk.Start:chunk.End]),
			"块 %d 的偏移切片必须还原出块文本", i)
		assert.NotEqual(t, ' ', runes[chunk.Start], "块 %d 的起始偏移不能落在空白上", i)
	}

	assert.Equal(t, 13, chunks[1].Start, "第二句的偏移应该跳过句间空白")
}

// TestChunkDocumentPages 测试页码覆盖标注
func TestChunkDocumentPages(t *testing.T) {
	c, err := New(DefaultConfig())
	require.NoError(t, err)

	doc := &textnorm.NormalizedDocument{
		DocumentID: "doc-5",
		Pages: []textnorm.NormalizedPage{
			{Number: 1, Text: "Vata governs all movement in the body."},
			{Number: 2, Text: "Pitta governs digestion and transformation."},
		},
	}

	chunks, err := c.ChunkDocument(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1, "短文档应该是单块")

	assert.Equal(t, []int{1, 2}, chunks[0].Pages, "块应该标注覆盖的页码")
	assert.Equal(t, "doc-5", chunks[0].DocumentID)
	assert.NotEmpty(t, chunks[0].ID)

	t.Run("nil document", func(t *testing.T) {
		_, err := c.ChunkDocument(nil)
		assert.Error(t, err)
	})
}

// TestChunkerConfigValidation 测试配置校验
func TestChunkerConfigValidation(t *testing.T) {
	_, err := New(Config{MaxChunkChars: 100, OverlapChars: 100})
	assert.Error(t, err, "重叠不能大于等于块上限")

	_, err = New(Config{MaxChunkChars: 100, MinChunkChars: 200, OverlapChars: 10})
	assert.Error(t, err, "下限不能超过上限")
}
