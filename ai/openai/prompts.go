package openai

import "fmt"

// summaryInputLimit caps the article text sent to the model, in runes.
const summaryInputLimit = 1500

const summaryResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "reporter": {
      "type": "string"
    },
    "summary": {
      "type": "array",
      "items": {"type": "string"},
      "minItems": 0,
      "maxItems": 5
    }
  },
  "required": ["reporter", "summary"],
  "additionalProperties": false
}`

const summaryPromptTemplate = `You read Taiwanese news articles and extract two fields. Return them as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- "reporter" is the byline exactly as printed, e.g. "記者王小明／台北報導". Use "" when there is no byline.
- "summary" holds 3 to 5 short bullet points in Traditional Chinese, each a single sentence without a leading dash.
- Only state facts present in the text. Do not hallucinate.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "記者王小明／台北報導 行政院今（5）日通過明年度總預算案，總額達3兆元，其中國防預算創新高。"
Output:
{
  "reporter": "記者王小明／台北報導",
  "summary": ["行政院通過明年度總預算案", "總預算規模達3兆元", "國防預算創下新高"]
}`

// buildSystemPrompt creates the system prompt with the response schema embedded.
func buildSystemPrompt() string {
	return fmt.Sprintf(summaryPromptTemplate, summaryResponseSchema)
}
