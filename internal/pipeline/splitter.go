package pipeline

import (
	"strings"
	"unicode/utf8"
)

// defaultSeparators 按优先级排列，空串表示按字符切分。
var defaultSeparators = []string{"\n\n", "\n", ".", " ", ""}

// Splitter 递归地按分隔符切分文本，使每块不超过 ChunkSize 个字符，
// 相邻块之间保留不超过 ChunkOverlap 个字符的重叠。
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// NewSplitter 创建一个 Splitter，overlap 不小于 size 时取 0。
func NewSplitter(size, overlap int) Splitter {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	return Splitter{ChunkSize: size, ChunkOverlap: overlap, Separators: defaultSeparators}
}

// Split 切分文本，丢弃空白块。
func (s Splitter) Split(text string) []string {
	return s.split(text, s.Separators)
}

func (s Splitter) split(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, c := range separators {
		if c == "" || strings.Contains(text, c) {
			sep = c
			rest = separators[i+1:]
			break
		}
	}

	var parts []string
	if sep == "" {
		for _, r := range text {
			parts = append(parts, string(r))
		}
	} else {
		parts = strings.Split(text, sep)
	}

	var out, pending []string
	for _, p := range parts {
		if strings.TrimSpace(p) == "" && sep != "" {
			continue
		}
		if runeLen(p) <= s.ChunkSize {
			pending = append(pending, p)
			continue
		}
		if len(pending) > 0 {
			out = append(out, s.merge(pending, sep)...)
			pending = nil
		}
		if len(rest) == 0 {
			out = append(out, s.merge([]string{p}, sep)...)
			continue
		}
		out = append(out, s.split(p, rest)...)
	}
	if len(pending) > 0 {
		out = append(out, s.merge(pending, sep)...)
	}
	return out
}

// merge 把小片段拼成不超过 ChunkSize 的块，新块以上一块末尾不超过 ChunkOverlap 的片段开头。
func (s Splitter) merge(pieces []string, sep string) []string {
	var docs, window []string
	for _, p := range pieces {
		if len(window) > 0 && grownLen(window, sep, p) > s.ChunkSize {
			if doc := strings.TrimSpace(strings.Join(window, sep)); doc != "" {
				docs = append(docs, doc)
			}
			for len(window) > 0 && (joinedLen(window, sep) > s.ChunkOverlap || grownLen(window, sep, p) > s.ChunkSize) {
				window = window[1:]
			}
		}
		window = append(window, p)
	}
	if doc := strings.TrimSpace(strings.Join(window, sep)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func joinedLen(pieces []string, sep string) int {
	if len(pieces) == 0 {
		return 0
	}
	n := runeLen(sep) * (len(pieces) - 1)
	for _, p := range pieces {
		n += runeLen(p)
	}
	return n
}

// grownLen 是 window 追加 p 之后拼接出的长度。
func grownLen(window []string, sep, p string) int {
	if len(window) == 0 {
		return runeLen(p)
	}
	return joinedLen(window, sep) + runeLen(sep) + runeLen(p)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
