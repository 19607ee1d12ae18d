package rag

import (
	"fmt"
	"strings"
)

// NoExamples is the literal injected when retrieval finds nothing.
const NoExamples = "（暂无相关示例）"

// FormatRetrievedExamples renders examples as the Markdown block injected
// into prompt_vars["retrieved_examples"]:
//
//	- 例子1
//	  - 标签 : ...
//	  - 用户提问 : ...
//	  - 回复例子（思路） : ...
//
// with a blank line between examples.
func FormatRetrievedExamples(results []RetrievedExample) string {
	if len(results) == 0 {
		return NoExamples
	}

	var lines []string
	for i, result := range results {
		tags := "无"
		if len(result.Tags) > 0 {
			tags = strings.Join(result.Tags, ", ")
		}

		lines = append(lines,
			fmt.Sprintf("- 例子%d", i+1),
			fmt.Sprintf("  - 标签 : %s", tags),
			fmt.Sprintf("  - 用户提问 : %s", result.UserInput),
			fmt.Sprintf("  - 回复例子（思路） : %s", result.AgentResponse),
		)
		if i < len(results)-1 {
			lines = append(lines, "")
		}
	}

	return strings.Join(lines, "\n")
}
