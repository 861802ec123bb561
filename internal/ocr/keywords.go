package ocr

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinKeywordLength is the shortest token kept as a keyword, in runes
const MinKeywordLength = 3

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		the and for are but not you all any can had her was one our out has him his how
		man new now old see two way who did its let put say she too use that with have this
		will your from they know want been good much some time very when come here just like
		long make many more only over such take than them well were what into then there
		these those would could should about after again also being below between both
		each few most other same so than too under until while where which why own off
		once does doing during before above because through further`) {
		stopWords[w] = struct{}{}
	}
}

// IsStopWord reports whether the lower-cased word is filtered from keywords
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}

// ExtractKeywords tokenizes the document's ordered text on non-alphanumeric
// boundaries, lower-cases, drops stop words and short tokens, and removes
// duplicates keeping first-occurrence order
func ExtractKeywords(doc *Document) []string {
	return KeywordsFromText(doc.Text())
}

// KeywordsFromText applies ExtractKeywords to plain text
func KeywordsFromText(text string) []string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(tokens))
	keywords := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.ToLower(tok)
		if utf8.RuneCountInString(tok) < MinKeywordLength || IsStopWord(tok) {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}
