package classifier

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexiconYAML []byte

// ContentRule describes how to recognize one content type and the raw
// classification to give it
type ContentRule struct {
	Type         string   `yaml:"type"`
	Category     string   `yaml:"category"`
	Priority     string   `yaml:"priority"`
	Distraction  int      `yaml:"distraction"`
	Applications []string `yaml:"applications"` // substrings of title or process name
	Keywords     []string `yaml:"keywords"`     // whole OCR keywords
	Markers      []string `yaml:"markers"`      // substrings of the raw OCR text

	contentType ContentType
	category    WorkCategory
	priority    Priority
}

// LexiconFile is the structure of a lexicon YAML file
type LexiconFile struct {
	AttentionKeywords []string      `yaml:"attention_keywords"`
	Rules             []ContentRule `yaml:"rules"`
}

// Lexicon is a validated, lower-cased LexiconFile
type Lexicon struct {
	attention map[string]struct{}
	rules     []ContentRule
}

// DefaultLexicon returns the built-in lexicon
func DefaultLexicon() *Lexicon {
	lex, err := ParseLexicon(defaultLexiconYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in lexicon is invalid: %v", err))
	}
	return lex
}

// LoadLexicon reads a lexicon from a YAML file
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon file %s: %w", path, err)
	}
	return ParseLexicon(data)
}

// ParseLexicon parses and validates lexicon YAML
func ParseLexicon(data []byte) (*Lexicon, error) {
	var file LexiconFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lexicon YAML: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("lexicon has no rules")
	}

	lex := &Lexicon{attention: make(map[string]struct{}, len(file.AttentionKeywords))}
	for _, kw := range file.AttentionKeywords {
		lex.attention[strings.ToLower(kw)] = struct{}{}
	}

	for i, rule := range file.Rules {
		rule.contentType = ParseContentType(rule.Type)
		if rule.contentType == ContentUnknown {
			return nil, fmt.Errorf("rule %d: unknown content type %q", i+1, rule.Type)
		}
		rule.category = ParseWorkCategory(rule.Category)
		rule.priority = ParsePriority(rule.Priority)
		if rule.priority == PriorityUnset {
			rule.priority = PriorityMedium
		}
		if rule.Distraction < 0 || rule.Distraction > 10 {
			return nil, fmt.Errorf("rule %d (%s): distraction must be within [0,10]", i+1, rule.Type)
		}
		rule.Applications = lowerAll(rule.Applications)
		rule.Keywords = lowerAll(rule.Keywords)
		rule.Markers = lowerAll(rule.Markers)
		lex.rules = append(lex.rules, rule)
	}
	return lex, nil
}

// Rules returns the rules in match priority order
func (l *Lexicon) Rules() []ContentRule {
	out := make([]ContentRule, len(l.rules))
	copy(out, l.rules)
	return out
}

// RequiresAttention reports whether any keyword is an attention keyword
func (l *Lexicon) RequiresAttention(keywords []string) bool {
	for _, kw := range keywords {
		if _, ok := l.attention[kw]; ok {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
