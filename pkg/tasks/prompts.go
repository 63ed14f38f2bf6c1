package tasks

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// MaxContentChars is the hard cutoff applied to page content before prompting.
const MaxContentChars = 15000

// Truncate returns at most limit characters (runes) of s.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// LanguageName renders a BCP 47 tag such as "zh-CN" as an English language
// name for use inside prompts. Unparseable codes are returned unchanged.
func LanguageName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return "English"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}

const summarySystemPrompt = "You are a professional web content analyst. Write a high-quality Markdown summary report in %s."

const summaryPromptTemplate = `Analyse the web page content below in the following steps and write a Markdown report in %[1]s:

1. **Site purpose and function**:
   - From the page content (navigation, footer, metadata and so on), briefly describe what this website is (for example: a technical blog, an e-commerce platform, SaaS documentation).

2. **Current page overview**:
   - Taking the site purpose into account, summarise the core content of the current page in detail.
   - Extract key points, data, steps or conclusions.
   - For long articles use bullet points; for tool pages explain how to use the tool.

**Requirements**:
- Write in %[1]s only.
- Format the output as Markdown (headings, lists, bold text).
- Stay concise and to the point; leave out ads and unrelated noise.

Page content excerpt:
%[2]s
`

const mindMapSystemPrompt = "You are a mind map generation expert. Return JSON data only, without any Markdown markup."

const mindMapPromptTemplate = `Generate mind map data from the web page content below.

**Requirements**:
1. Return pure JSON only.
2. The node structure must express the hierarchy and suit a tree layout.
3. Node labels must be in %[1]s and short (phrases rather than sentences).
4. The root node is the core topic of the page.
5. Use the color attribute to distinguish levels or sections (for example: root red, first level orange, second level blue).

**JSON format**:
{
  "nodes": [
    { "id": "1", "label": "Core topic", "type": "root", "color": "#ef4444" },
    { "id": "2", "label": "Section A", "type": "default", "color": "#f97316" }
  ],
  "edges": [
    { "source": "1", "target": "2", "animated": true }
  ]
}

Page content:
%[2]s
`

const chatSystemPrompt = "You are a helpful assistant. Always answer the user's questions in %s. If the user asks about the web page content, answer based on the context."

func summaryPrompts(lang, content string) (system, user string) {
	name := LanguageName(lang)
	return fmt.Sprintf(summarySystemPrompt, name),
		fmt.Sprintf(summaryPromptTemplate, name, Truncate(content, MaxContentChars))
}

func mindMapPrompts(lang, content string) (system, user string) {
	return mindMapSystemPrompt,
		fmt.Sprintf(mindMapPromptTemplate, LanguageName(lang), Truncate(content, MaxContentChars))
}

func chatSystem(lang string) string {
	return fmt.Sprintf(chatSystemPrompt, LanguageName(lang))
}
