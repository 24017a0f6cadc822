package parser

import (
	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
)

const (
	whitespaceCode = iota + 1
	wordCode
)

var (
	whitespaceToken = parsly.NewToken(whitespaceCode, "Whitespace", matcher.NewWhiteSpace())
	wordToken       = parsly.NewToken(wordCode, "Word", &wordMatcher{})
)

// wordMatcher matches a run of non whitespace bytes.
type wordMatcher struct{}

func (m *wordMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	matched := 0
	for i := cursor.Pos; i < cursor.InputSize; i++ {
		switch input[i] {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			return matched
		}
		matched++
	}
	return matched
}
