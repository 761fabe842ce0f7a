package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLLMClient 返回固定文本的假大模型客户端
type fakeLLMClient struct {
	reply      string
	calls      int
	lastPrompt string
}

func (f *fakeLLMClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	f.calls++
	f.lastPrompt = prompt
	return &Response{Text: f.reply, ModelName: "fake-model", TokenCount: 42}, nil
}

func (f *fakeLLMClient) Name() string { return "fake-model" }

func testPassages() []Passage {
	return []Passage{
		{ChunkID: "chunk-1", DocumentID: "doc-1", Text: "Vāta governs movement and the nervous system in the body."},
		{ChunkID: "chunk-2", DocumentID: "doc-1", Text: "Pitta governs digestion and metabolic transformation."},
	}
}

// TestRAGAbstention 测试证据不足时的放弃回答行为
func TestRAGAbstention(t *testing.T) {
	ctx := context.Background()

	t.Run("empty passages abstains without llm call", func(t *testing.T) {
		client := &fakeLLMClient{reply: "should not be used"}
		rag := NewRAG(client)

		answer, err := rag.Answer(ctx, "What balances Vāta?", nil)
		require.NoError(t, err, "空证据必须不是错误")

		assert.True(t, answer.Abstained, "空证据应该放弃回答")
		assert.Empty(t, answer.Citations, "放弃回答时引用必须为空")
		assert.Equal(t, AbstainReasonNoContext, answer.Reason)
		assert.Equal(t, 0, client.calls, "放弃回答时不应该调用大模型")
	})

	t.Run("insufficient evidence abstains without llm call", func(t *testing.T) {
		client := &fakeLLMClient{reply: "should not be used"}
		rag := NewRAG(client, WithMinEvidenceChars(100))

		answer, err := rag.Answer(ctx, "What balances Vāta?", []Passage{
			{ChunkID: "chunk-1", DocumentID: "doc-1", Text: "Vāta."},
		})
		require.NoError(t, err)

		assert.True(t, answer.Abstained)
		assert.Empty(t, answer.Citations)
		assert.Equal(t, AbstainReasonInsufficientEvidence, answer.Reason)
		assert.Equal(t, 0, client.calls)
	})

	t.Run("model declining marks abstained", func(t *testing.T) {
		client := &fakeLLMClient{reply: "抱歉，我没有找到相关信息。"}
		rag := NewRAG(client)

		answer, err := rag.Answer(ctx, "What is quantum chromodynamics?", testPassages())
		require.NoError(t, err)

		assert.True(t, answer.Abstained)
		assert.Empty(t, answer.Citations, "模型拒答时引用必须为空")
		assert.Equal(t, AbstainReasonModelDeclined, answer.Reason)
		assert.Equal(t, 1, client.calls)
	})

	t.Run("empty question rejected", func(t *testing.T) {
		rag := NewRAG(&fakeLLMClient{})
		_, err := rag.Answer(ctx, "  ", testPassages())

		var llmErr LLMError
		require.ErrorAs(t, err, &llmErr)
		assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code)
	})
}

// TestRAGAnswerWithCitations 测试正常回答和引用提取
func TestRAGAnswerWithCitations(t *testing.T) {
	ctx := context.Background()

	t.Run("citations follow answer markers", func(t *testing.T) {
		client := &fakeLLMClient{reply: "Vāta掌管身体的运动【1】。"}
		rag := NewRAG(client)

		answer, err := rag.Answer(ctx, "What does Vāta govern?", testPassages())
		require.NoError(t, err)

		assert.False(t, answer.Abstained)
		require.Len(t, answer.Citations, 1)
		assert.Equal(t, 1, answer.Citations[0].Index)
		assert.Equal(t, "chunk-1", answer.Citations[0].ChunkID)
		assert.Equal(t, "doc-1", answer.Citations[0].DocumentID)
	})

	t.Run("citations only from supplied passages", func(t *testing.T) {
		// 编号越界的标注必须被忽略
		client := &fakeLLMClient{reply: "运动【1】与消化【7】。"}
		rag := NewRAG(client)

		answer, err := rag.Answer(ctx, "What does Vāta govern?", testPassages())
		require.NoError(t, err)

		require.Len(t, answer.Citations, 1)
		assert.Equal(t, "chunk-1", answer.Citations[0].ChunkID)
	})

	t.Run("unmarked answer cites all passages", func(t *testing.T) {
		client := &fakeLLMClient{reply: "Vāta掌管运动，Pitta掌管消化。"}
		rag := NewRAG(client)

		answer, err := rag.Answer(ctx, "What do the doshas govern?", testPassages())
		require.NoError(t, err)

		require.Len(t, answer.Citations, 2)
		assert.Equal(t, "chunk-1", answer.Citations[0].ChunkID)
		assert.Equal(t, "chunk-2", answer.Citations[1].ChunkID)
	})

	t.Run("prompt carries question and numbered context", func(t *testing.T) {
		client := &fakeLLMClient{reply: "ok"}
		rag := NewRAG(client)

		_, err := rag.Answer(ctx, "What does Vāta govern?", testPassages())
		require.NoError(t, err)

		assert.Contains(t, client.lastPrompt, "What does Vāta govern?")
		assert.Contains(t, client.lastPrompt, "【1】Vāta governs movement")
		assert.Contains(t, client.lastPrompt, "【2】Pitta governs digestion")
		assert.False(t, strings.Contains(client.lastPrompt, "{{."), "模板变量必须全部被替换")
	})
}

// TestExtractCitations 测试引用提取的边界情况
func TestExtractCitations(t *testing.T) {
	passages := testPassages()

	t.Run("duplicate markers deduplicated", func(t *testing.T) {
		citations := extractCitations("a【1】b【1】c【2】", passages)
		require.Len(t, citations, 2)
		assert.Equal(t, 1, citations[0].Index)
		assert.Equal(t, 2, citations[1].Index)
	})

	t.Run("zero index ignored", func(t *testing.T) {
		citations := extractCitations("a【0】b【2】", passages)
		require.Len(t, citations, 1)
		assert.Equal(t, "chunk-2", citations[0].ChunkID)
	})

	t.Run("long snippet truncated", func(t *testing.T) {
		long := Passage{ChunkID: "c", DocumentID: "d", Text: strings.Repeat("x", 500)}
		citations := extractCitations("a【1】", []Passage{long})
		require.Len(t, citations, 1)
		assert.True(t, strings.HasSuffix(citations[0].Snippet, "..."))
		assert.LessOrEqual(t, len([]rune(citations[0].Snippet)), 163)
	})
}
