package preference

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/zhouzirui/askmore/backend/internal/model/session"
)

// Directive 表示根据原始请求追加到检索提示中的指令。
type Directive string

const (
	Ranking   Directive = "ranking"
	Exclusion Directive = "exclusion"
)

// 英文关键词按整词匹配，中文关键词按子串匹配。
var keywordBuckets = map[Directive][]string{
	Ranking:   {"top", "best", "最好", "排名", "推荐前"},
	Exclusion: {"haven't", "didn't", "not", "never", "没看过", "没买过", "还没"},
}

var directiveText = map[Directive]string{
	Ranking:   "Return the top results ranked by relevance and quality.",
	Exclusion: "Exclude items the user has already purchased or watched.",
}

// Detect 返回请求中出现的指令，顺序固定为 Ranking、Exclusion。
func Detect(query string) []Directive {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return nil
	}

	tokens := make(map[string]struct{})
	for _, tok := range tokenize(normalized) {
		tokens[tok] = struct{}{}
	}

	var found []Directive
	for _, d := range []Directive{Ranking, Exclusion} {
		for _, word := range keywordBuckets[d] {
			if matches(normalized, tokens, word) {
				found = append(found, d)
				break
			}
		}
	}
	return found
}

// BuildHandoffPrompt 将原始请求与已回答的偏好整理为交给检索环节的提示词。
// 只做格式化，不做排序或筛选。
func BuildHandoffPrompt(query string, summary []session.SummaryEntry, userID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User wants: %s\n\n", strings.TrimSpace(query))

	b.WriteString("User Preferences:\n")
	if len(summary) == 0 {
		b.WriteString("- (none given)\n")
	}
	for _, entry := range summary {
		label := entry.Question
		if label == "" {
			label = entry.QuestionID
		}
		fmt.Fprintf(&b, "- %s: %s\n", label, entry.Answer)
	}
	b.WriteString("\nPlease search for relevant products and provide recommendations based on these preferences.\n")

	for _, d := range Detect(query) {
		b.WriteString("\n")
		b.WriteString(directiveText[d])
		if d == Exclusion && strings.TrimSpace(userID) != "" {
			fmt.Fprintf(&b, "\nUser ID: %s (check purchase/watch history if available)", strings.TrimSpace(userID))
		}
	}

	b.WriteString("\n\nProvide a clear, structured list of recommendations with titles, descriptions, and relevant details.")
	return b.String()
}

func matches(normalized string, tokens map[string]struct{}, word string) bool {
	if isASCII(word) {
		_, ok := tokens[word]
		return ok
	}
	return strings.Contains(normalized, word)
}

func tokenize(text string) []string {
	// 保留撇号，"haven't" 才能整词命中
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’'
	})
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
