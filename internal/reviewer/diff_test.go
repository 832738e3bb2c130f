package reviewer

import (
	"strings"
	"testing"

	"pr-review-hub/internal/domain"
)

const sampleDiff = `diff --git a/cmd/main.go b/cmd/main.go
index 1111111..2222222 100644
--- a/cmd/main.go
+++ b/cmd/main.go
@@ -10,4 +10,6 @@ func main() {
 	run()
+	if err := setup(); err != nil {
+		log.Fatal(err)
+	}
 	cleanup()
diff --git a/assets/logo.png b/assets/logo.png
Binary files a/assets/logo.png and b/assets/logo.png differ
diff --git a/internal/store.go b/internal/store.go
index 3333333..4444444 100644
--- a/internal/store.go
+++ b/internal/store.go
@@ -1,3 +1,4 @@
 package store
+
+var cache = map[string]string{}
`

func TestStripBinaryDiffs(t *testing.T) {
	out := stripBinaryDiffs(sampleDiff)

	if strings.Contains(out, "Binary files") {
		t.Error("binary section should be removed")
	}
	if !strings.Contains(out, "[Binary file assets/logo.png changed, content omitted]") {
		t.Errorf("expected binary placeholder, got:\n%s", out)
	}
	if !strings.Contains(out, "cmd/main.go") || !strings.Contains(out, "internal/store.go") {
		t.Error("text sections must survive")
	}
}

func TestStripBinaryDiffsPassthrough(t *testing.T) {
	plain := "@@ -1,2 +1,2 @@\n-a\n+b\n"
	if got := stripBinaryDiffs(plain); got != plain {
		t.Errorf("diff without file headers must pass through, got %q", got)
	}
}

func TestIndexDiffLines(t *testing.T) {
	idx := indexDiff(sampleDiff)

	if !idx.hasFile("cmd/main.go") {
		t.Error("expected cmd/main.go in index")
	}
	if !idx.hasFile("main.go") {
		t.Error("expected suffix match on main.go")
	}
	if idx.hasFile("vendor/other.go") {
		t.Error("unexpected file match")
	}

	// Lines 11-12 are the added setup block, line 10 is context.
	for _, line := range []int{10, 11, 12} {
		if !idx.hasLine("cmd/main.go", line) {
			t.Errorf("expected line %d covered", line)
		}
	}
	if idx.hasLine("cmd/main.go", 500) {
		t.Error("line 500 is outside every hunk")
	}
}

func TestSanitizeComments(t *testing.T) {
	idx := indexDiff(sampleDiff)
	result := &Result{
		Score: 70,
		Comments: []ResultComment{
			{FilePath: "cmd/main.go", LineNumber: 11, Body: "check error", Severity: domain.SeverityHigh},
			{FilePath: "cmd/main.go", LineNumber: 999, Body: "stale line", Severity: domain.SeverityLow},
			{FilePath: "docs/readme.md", LineNumber: 3, Body: "not in diff", Severity: domain.SeverityInfo},
			{FilePath: "Unknown", LineNumber: 0, Body: "general remark", Severity: domain.SeverityInfo},
		},
	}

	dropped := sanitizeComments(result, idx)
	if dropped != 1 {
		t.Fatalf("expected 1 dropped comment, got %d", dropped)
	}
	if len(result.Comments) != 3 {
		t.Fatalf("expected 3 kept comments, got %d", len(result.Comments))
	}
	if result.Comments[0].LineNumber != 11 {
		t.Errorf("valid line must be preserved, got %d", result.Comments[0].LineNumber)
	}
	if result.Comments[1].LineNumber != 0 {
		t.Errorf("uncovered line must demote to file-level, got %d", result.Comments[1].LineNumber)
	}
	if result.Comments[2].FilePath != "Unknown" {
		t.Errorf("unlocated comments must be kept, got %+v", result.Comments[2])
	}
}
