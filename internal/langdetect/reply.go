package langdetect

import (
	"regexp"
	"strings"
)

// aliases maps fence info strings to the tags Detect produces. Tags outside
// the detection table are kept so replies about other languages still
// highlight.
var aliases = map[string]string{
	"python":     Python,
	"py":         Python,
	"python3":    Python,
	"tsx":        TSX,
	"jsx":        JSX,
	"html":       HTML,
	"xml":        HTML,
	"typescript": TypeScript,
	"ts":         TypeScript,
	"c":          C,
	"h":          C,
	"cpp":        CPP,
	"c++":        CPP,
	"cc":         CPP,
	"hpp":        CPP,
	"java":       Java,
	"go":         Go,
	"golang":     Go,
	"ruby":       Ruby,
	"rb":         Ruby,
	"sql":        SQL,
	"javascript": JavaScript,
	"js":         JavaScript,
	"mjs":        JavaScript,
	"rust":       "rust",
	"rs":         "rust",
	"bash":       "bash",
	"sh":         "bash",
	"shell":      "bash",
	"json":       "json",
	"yaml":       "yaml",
	"yml":        "yaml",
	"css":        "css",
	"kotlin":     "kotlin",
	"swift":      "swift",
	"php":        "php",
	"csharp":     "csharp",
	"cs":         "csharp",
}

var fenceBlock = regexp.MustCompile("(?s)```([^\\n`]*)\\n(.*?)(```|$)")

// Normalize maps a fence info string to a known tag. ok is false when the
// name is not recognised.
func Normalize(name string) (tag string, ok bool) {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return "", false
	}
	tag, ok = aliases[fields[0]]
	return tag, ok
}

// FromReply returns the language a model reply is written about. The first
// fenced block's info string wins when it names a known language; otherwise
// the fenced body, or the whole reply when there is no fence, goes through
// Detect.
func FromReply(reply string) string {
	m := fenceBlock.FindStringSubmatch(reply)
	if m == nil {
		return Detect(reply)
	}
	if tag, ok := Normalize(m[1]); ok {
		return tag
	}
	return Detect(m[2])
}

// Fence wraps code in a Markdown code fence tagged with its detected
// language.
func Fence(code string) string {
	return FenceAs(code, Detect(code))
}

// FenceAs wraps code in a Markdown code fence with the given tag. The fence
// is lengthened when the code itself contains backtick runs.
func FenceAs(code, tag string) string {
	fence := "```"
	for strings.Contains(code, fence) {
		fence += "`"
	}
	var b strings.Builder
	b.WriteString(fence)
	b.WriteString(tag)
	b.WriteByte('\n')
	b.WriteString(strings.TrimRight(code, "\n"))
	b.WriteByte('\n')
	b.WriteString(fence)
	return b.String()
}
