package service

import "strings"

// injectionPatterns 是试图绕开资料约束的常见说法，命中任一项即拒答。
var injectionPatterns = []string{
	"ignore previous", "ignore all previous", "disregard your instructions",
	"forget your instructions", "you are now", "act as", "pretend you are",
	"jailbreak", "override instructions", "your new instructions",
	"roleplay as", "bypass", "use your knowledge",
	"explain in detail even if not in notes", "add extra examples",
	"explain broadly", "use your own knowledge", "ignore rules",
	"forget everything", "new persona", "system prompt",
	"reveal your instructions", "what are your rules",
	"tell me your prompt", "show system message",
	"answer from internet", "search the web", "use google",
	"use wikipedia", "use external sources",
}

// isPromptInjection 不区分大小写地检查问题中是否包含注入短语。
func isPromptInjection(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range injectionPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
