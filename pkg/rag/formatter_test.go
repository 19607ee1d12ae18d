package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatRetrievedExamples(t *testing.T) {
	results := []RetrievedExample{
		{
			UserInput:     "我今天血压140/90",
			AgentResponse: "先确认测量条件，再记录",
			Tags:          []string{"血压", "记录"},
			Similarity:    0.91,
			Source:        "record_examples",
		},
		{
			UserInput:     "高血压吃什么好",
			AgentResponse: "低盐饮食建议",
			Similarity:    0.82,
			Source:        "qa_examples",
		},
	}

	formatted := FormatRetrievedExamples(results)

	assert.Contains(t, formatted, "- 例子1")
	assert.Contains(t, formatted, "- 例子2")
	assert.Contains(t, formatted, "  - 标签 : 血压, 记录")
	assert.Contains(t, formatted, "  - 用户提问 : 我今天血压140/90")
	assert.Contains(t, formatted, "  - 回复例子（思路） : 低盐饮食建议")
	// Missing tags render as 无.
	assert.Contains(t, formatted, "  - 标签 : 无")
	// Blank line between examples, none trailing.
	assert.Contains(t, formatted, "思路） : 先确认测量条件，再记录\n\n- 例子2")
	assert.False(t, strings.HasSuffix(formatted, "\n"))
}

func TestFormatRetrievedExamples_Empty(t *testing.T) {
	assert.Equal(t, NoExamples, FormatRetrievedExamples(nil))
	assert.Equal(t, NoExamples, FormatRetrievedExamples([]RetrievedExample{}))
}

func TestNormalizeL2(t *testing.T) {
	vec := normalizeL2([]float32{3, 4})
	require.Len(t, vec, 2)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)

	// Zero vectors pass through.
	zero := normalizeL2([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[0.5,-1,0.25]", vectorLiteral([]float32{0.5, -1, 0.25}))
}
