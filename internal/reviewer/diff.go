package reviewer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	fileHeaderRe = regexp.MustCompile(`(?m)^\+\+\+ (?:b/)?(.+)$`)
	hunkHeaderRe = regexp.MustCompile(`(?m)^@@ -\d+(?:,\d+)? \+(\d+)(?:,(\d+))? @@`)
	diffGitRe    = regexp.MustCompile(`^diff --git\s+\S+\s+(?:b/)?(\S+)`)
)

// stripBinaryDiffs removes binary file sections from a unified diff,
// leaving a one-line note so the model still sees that the file changed.
func stripBinaryDiffs(diff string) string {
	sections := splitDiffFiles(diff)
	if len(sections) < 2 {
		return diff
	}

	var b strings.Builder
	b.WriteString(sections[0])
	for _, section := range sections[1:] {
		if strings.Contains(section, "Binary files") || strings.Contains(section, "GIT binary patch") {
			b.WriteString(fmt.Sprintf("[Binary file %s changed, content omitted]\n", diffFilePath(section)))
			continue
		}
		b.WriteString(section)
	}
	return b.String()
}

// splitDiffFiles splits a unified diff into per-file sections. The first
// element is any preamble before the first file header, usually empty.
func splitDiffFiles(diff string) []string {
	var sections []string
	var current strings.Builder
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		if strings.HasPrefix(line, "diff --git") {
			sections = append(sections, current.String())
			current.Reset()
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	return append(sections, current.String())
}

func diffFilePath(fileDiff string) string {
	for _, line := range strings.Split(fileDiff, "\n") {
		if m := diffGitRe.FindStringSubmatch(line); len(m) > 1 {
			return m[1]
		}
	}
	if m := fileHeaderRe.FindStringSubmatch(fileDiff); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return "unknown"
}

// diffIndex records which files a diff touches and which new-file line
// numbers its hunks cover. Used to keep AI comments anchored to code that
// is actually part of the change.
type diffIndex struct {
	lines map[string]map[int]bool
}

func indexDiff(diff string) *diffIndex {
	idx := &diffIndex{lines: make(map[string]map[int]bool)}

	var currentFile string
	var lineNum int
	inHunk := false
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "diff --git") {
			inHunk = false
			continue
		}
		if m := fileHeaderRe.FindStringSubmatch(line); len(m) > 1 {
			currentFile = normalizePath(strings.TrimSpace(m[1]))
			if _, ok := idx.lines[currentFile]; !ok {
				idx.lines[currentFile] = make(map[int]bool)
			}
			inHunk = false
			continue
		}
		if m := hunkHeaderRe.FindStringSubmatch(line); len(m) > 1 {
			lineNum, _ = strconv.Atoi(m[1])
			inHunk = true
			continue
		}
		if !inHunk || currentFile == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			idx.lines[currentFile][lineNum] = true
			lineNum++
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			// removed line, new-file numbering does not advance
		case strings.HasPrefix(line, " ") || line == "":
			idx.lines[currentFile][lineNum] = true
			lineNum++
		}
	}
	return idx
}

func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimPrefix(p, "a/")
	return strings.TrimPrefix(p, "b/")
}

// hasFile reports whether the diff touches the file. Paths returned by the
// model sometimes carry a different prefix, so suffix matches count.
func (idx *diffIndex) hasFile(path string) bool {
	path = normalizePath(path)
	if _, ok := idx.lines[path]; ok {
		return true
	}
	for f := range idx.lines {
		if strings.HasSuffix(f, "/"+path) || strings.HasSuffix(path, "/"+f) {
			return true
		}
	}
	return false
}

// hasLine reports whether the diff covers the given new-file line.
func (idx *diffIndex) hasLine(path string, line int) bool {
	path = normalizePath(path)
	if lines, ok := idx.lines[path]; ok {
		return lines[line]
	}
	for f, lines := range idx.lines {
		if strings.HasSuffix(f, "/"+path) || strings.HasSuffix(path, "/"+f) {
			return lines[line]
		}
	}
	return false
}

// sanitizeComments drops comments on files the diff never touches and
// demotes comments on uncovered lines to file-level (line 0). Returns the
// number of dropped comments.
func sanitizeComments(result *Result, idx *diffIndex) int {
	kept := result.Comments[:0]
	dropped := 0
	for _, c := range result.Comments {
		if c.FilePath != "" && c.FilePath != "Unknown" && !idx.hasFile(c.FilePath) {
			dropped++
			continue
		}
		if c.LineNumber != 0 && !idx.hasLine(c.FilePath, c.LineNumber) {
			c.LineNumber = 0
		}
		kept = append(kept, c)
	}
	result.Comments = kept
	return dropped
}
