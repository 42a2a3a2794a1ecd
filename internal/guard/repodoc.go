package guard

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Rogers-F/governance-engine/internal/hashing"
	"github.com/Rogers-F/governance-engine/internal/reason"
)

// DocClass is the classification of a repository document.
type DocClass string

const (
	DocBenign      DocClass = "benign"
	DocUnsafe      DocClass = "unsafe"
	DocInteractive DocClass = "interactive"
	DocWidening    DocClass = "widening"
)

const maxExcerpt = 160

// RepoDoc is a repository-provided instruction document such as AGENTS.md.
type RepoDoc struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// DocFinding is the classification of one document.
type DocFinding struct {
	Class   DocClass `json:"class"`
	DocPath string   `json:"doc_path"`
	DocHash string   `json:"doc_hash"`
	Excerpt string   `json:"directive_excerpt,omitempty"`
	Line    int      `json:"line,omitempty"`
}

// Context renders the finding as a reason context.
func (f DocFinding) Context() reason.DirectiveContext {
	return reason.DirectiveContext{DocPath: f.DocPath, DocHash: f.DocHash, DirectiveExcerpt: f.Excerpt}
}

type directiveRule struct {
	class DocClass
	re    *regexp.Regexp
}

// directiveRules are checked against every line. Each class is reported
// once per document, at its first matching line.
var directiveRules = []directiveRule{
	{DocUnsafe, regexp.MustCompile(`(?i)\b(curl|wget)\b[^|\n]*\|\s*(sudo\s+)?(ba|z)?sh\b`)},
	{DocUnsafe, regexp.MustCompile(`(?i)\brm\s+-[a-z]*r[a-z]*f?[a-z]*\s+(/|~)(\s|$)`)},
	{DocUnsafe, regexp.MustCompile(`(?i)\bchmod\s+(-R\s+)?777\b`)},
	{DocUnsafe, regexp.MustCompile(`(?i)\b(disable|skip|turn\s+off)\s+(ssl|tls|certificate)\s+verification\b`)},
	{DocUnsafe, regexp.MustCompile(`(?i)--no-verify\b`)},
	{DocUnsafe, regexp.MustCompile(`(?i)\b(exfiltrate|upload)\b.*\b(secrets?|credentials?|tokens?)\b`)},
	{DocInteractive, regexp.MustCompile(`(?i)\b(ask|prompt)\s+the\s+user\b`)},
	{DocInteractive, regexp.MustCompile(`(?i)\bwait\s+for\s+(the\s+)?(user|human)?\s*(input|confirmation|approval)\b`)},
	{DocInteractive, regexp.MustCompile(`(?i)\bpress\s+(enter|any\s+key)\b`)},
	{DocInteractive, regexp.MustCompile(`(?i)\bread\s+-p\b`)},
	{DocWidening, regexp.MustCompile(`(?i)\bignore\s+(all\s+)?(previous|prior|above|governance)\s+(rules|instructions|constraints)\b`)},
	{DocWidening, regexp.MustCompile(`(?i)\b(skip|bypass|disable)\s+(the\s+)?(tests?|gates?|review|governance|phase\s+gates?)\b`)},
	{DocWidening, regexp.MustCompile(`(?i)\b(may|can|allowed\s+to)\s+(write|modify|edit)\s+(anywhere|any\s+file|outside\s+the\s+(repo|workspace))\b`)},
	{DocWidening, regexp.MustCompile(`(?i)\boverride\s+(the\s+)?(governance|policy|policies)\b`)},
}

var classOrder = map[DocClass]int{DocUnsafe: 0, DocInteractive: 1, DocWidening: 2, DocBenign: 3}

// ClassifyRepoDoc returns one finding per directive class present in doc,
// most severe first. A clean document yields a single benign finding.
func ClassifyRepoDoc(doc RepoDoc) []DocFinding {
	content := hashing.NormalizeNewlines(doc.Content)
	docHash := hashing.HashString(content)
	found := make(map[DocClass]DocFinding, 3)

	// Lines have no length limit; every line is classified.
	for i, line := range strings.Split(content, "\n") {
		if len(found) == 3 {
			break
		}
		lineNo := i + 1
		for _, rule := range directiveRules {
			if _, seen := found[rule.class]; seen {
				continue
			}
			if rule.re.MatchString(line) {
				found[rule.class] = DocFinding{
					Class:   rule.class,
					DocPath: doc.Path,
					DocHash: docHash,
					Excerpt: excerpt(line),
					Line:    lineNo,
				}
			}
		}
	}

	if len(found) == 0 {
		return []DocFinding{{Class: DocBenign, DocPath: doc.Path, DocHash: docHash}}
	}
	out := make([]DocFinding, 0, len(found))
	for _, f := range found {
		out = append(out, f)
	}
	sortFindings(out)
	return out
}

// ClassifyRepoDocs classifies every document. Findings are ordered by path,
// then severity, so the first finding of a class is stable across runs.
func ClassifyRepoDocs(docs []RepoDoc) []DocFinding {
	var out []DocFinding
	for _, d := range docs {
		out = append(out, ClassifyRepoDoc(d)...)
	}
	sortFindings(out)
	return out
}

func sortFindings(fs []DocFinding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].DocPath != fs[j].DocPath {
			return fs[i].DocPath < fs[j].DocPath
		}
		return classOrder[fs[i].Class] < classOrder[fs[j].Class]
	})
}

// FirstOfClass returns the first finding of the given class.
func FirstOfClass(findings []DocFinding, class DocClass) (DocFinding, bool) {
	for _, f := range findings {
		if f.Class == class {
			return f, true
		}
	}
	return DocFinding{}, false
}

func excerpt(line string) string {
	s := strings.TrimSpace(line)
	if len(s) <= maxExcerpt {
		return s
	}
	cut := maxExcerpt
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
