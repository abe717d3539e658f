// Package langdetect guesses the language of a code snippet for syntax
// highlighting. Every caller shares the same ordered rule table.
package langdetect

import (
	"regexp"
	"strings"
)

// Default is returned when no rule matches.
const Default = "javascript"

// Language tags produced by Detect.
const (
	Python     = "python"
	TSX        = "tsx"
	JSX        = "jsx"
	HTML       = "html"
	TypeScript = "typescript"
	C          = "c"
	CPP        = "cpp"
	Java       = "java"
	Go         = "go"
	Ruby       = "ruby"
	SQL        = "sql"
	JavaScript = Default
)

// rule is one entry of the detection table. The first rule whose match
// reports true decides the tag; refine, when set, picks among variants.
type rule struct {
	tag    string
	match  func(code string) bool
	refine func(code string) string
}

func anyOf(patterns ...*regexp.Regexp) func(string) bool {
	return func(code string) bool {
		for _, re := range patterns {
			if re.MatchString(code) {
				return true
			}
		}
		return false
	}
}

func allOf(patterns ...*regexp.Regexp) func(string) bool {
	return func(code string) bool {
		for _, re := range patterns {
			if !re.MatchString(code) {
				return false
			}
		}
		return true
	}
}

var (
	pyDef    = regexp.MustCompile(`(?m)^\s*(async\s+)?def\s+\w+\s*\(.*\)\s*(->\s*[^:\n]+)?:\s*(#.*)?$`)
	pyImport = regexp.MustCompile(`(?m)^\s*from\s+[\w.]+\s+import\s+[\w*(]`)
	pyBlock  = regexp.MustCompile(`(?m)^\s*(if|elif|else|for|while|class|try|except|finally|with)\b[^{};\n]*:\s*(#.*)?$`)

	tagClose     = regexp.MustCompile(`</[A-Za-z][\w.-]*\s*>`)
	tagSelfClose = regexp.MustCompile(`<[A-Za-z][\w.-]*(\s[^<>]*)?/>`)

	tsxTypes  = regexp.MustCompile(`(?m)(^\s*(export\s+)?(interface|type)\s+\w+)|(\w\s*\??:\s*(string|number|boolean|any|unknown|void|React\.\w+|JSX\.\w+)\b)|(\w+Props\b\s*[>)=,])|(\bas\s+(string|number|const)\b)`)
	jsxIdioms = regexp.MustCompile(`(?m)(className=)|(\bon[A-Z]\w*=\{)|(=\{[^}]*\})|(\breturn\s*\(\s*$)|(\bimport\s+React\b)|(\buse(State|Effect|Memo|Ref|Callback)\s*\()|(<>)`)

	tsInterface = regexp.MustCompile(`(?m)^\s*(export\s+)?(declare\s+)?interface\s+\w+`)
	tsTypeAlias = regexp.MustCompile(`(?m)^\s*(export\s+)?type\s+\w+(<[^>]*>)?\s*=`)
	tsAnnot     = regexp.MustCompile(`[\w)\]?]\s*:\s*(string|number|boolean|any|unknown|void|never)(\[\])?\s*[,;)={\n]`)

	cInclude = regexp.MustCompile(`(?m)^\s*#\s*include\s*[<"]`)
	cppStd   = regexp.MustCompile(`\bstd::`)
	cppHints = regexp.MustCompile(`(\bstd::)|(\bnamespace\s+\w+)|(\btemplate\s*<)|(\bclass\s+\w+[^;]*\{)|(\bcout\b|\bcin\b)|(#\s*include\s*<(iostream|vector|string|map|memory|algorithm|unordered_map)>)|(\w::\w)`)

	javaMain  = regexp.MustCompile(`\bpublic\s+static\s+void\s+main\s*\(`)
	javaClass = regexp.MustCompile(`(?m)^\s*public\s+((final|abstract)\s+)?(class|interface|enum|record)\s+\w+`)

	goPackage = regexp.MustCompile(`(?m)^package\s+\w+\s*$`)
	goFunc    = regexp.MustCompile(`(?m)^func\s+(\([^)]*\)\s*)?\w+\s*(\[[^\]]*\])?\(`)

	rubyDef = regexp.MustCompile(`(?m)^\s*def\s+(self\.)?\w+[?!=]?(\s*\([^)]*\))?[^:\n]*$`)
	rubyEnd = regexp.MustCompile(`(?m)^\s*end\s*$`)

	sqlStmt = regexp.MustCompile(`(?is)\b(select\s+.+?\s+from|insert\s+into|update\s+\w+\s+set|delete\s+from|create\s+(table|index|view|unique\s+index)|alter\s+table|drop\s+(table|index|view))\b`)
)

func refineMarkup(code string) string {
	switch {
	case tsxTypes.MatchString(code):
		return TSX
	case jsxIdioms.MatchString(code):
		return JSX
	default:
		return HTML
	}
}

func refineC(code string) string {
	if cppHints.MatchString(code) {
		return CPP
	}
	return C
}

var rules = []rule{
	{tag: Python, match: anyOf(pyDef, pyImport, pyBlock)},
	{tag: HTML, match: anyOf(tagClose, tagSelfClose), refine: refineMarkup},
	{tag: TypeScript, match: anyOf(tsInterface, tsTypeAlias, tsAnnot)},
	{tag: C, match: anyOf(cInclude, cppStd), refine: refineC},
	{tag: Java, match: anyOf(javaMain, javaClass)},
	{tag: Go, match: anyOf(goPackage, goFunc)},
	{tag: Ruby, match: allOf(rubyDef, rubyEnd)},
	{tag: SQL, match: anyOf(sqlStmt)},
}

// Detect returns the best-guess language tag for code. It never fails:
// empty input and unmatched input both yield Default.
func Detect(code string) string {
	if strings.TrimSpace(code) == "" {
		return Default
	}
	for _, r := range rules {
		if !r.match(code) {
			continue
		}
		if r.refine != nil {
			return r.refine(code)
		}
		return r.tag
	}
	return Default
}
