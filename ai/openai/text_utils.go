package openai

import (
	"strings"

	"github.com/poiesic/newsindex/ai"
	"github.com/poiesic/newsindex/core"
)

// stripCodeFence removes a surrounding markdown code fence and whitespace.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// formatBullets renders summary points one per line, each prefixed with "- ".
func formatBullets(points []string) string {
	lines := make([]string, 0, len(points))
	for _, p := range points {
		p = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(p), "-•*"))
		if p == "" {
			continue
		}
		lines = append(lines, "- "+p)
	}
	return strings.Join(lines, "\n")
}

// parseLabelledLines reads the plain answer format
//
//	記者：XXX
//	大綱：
//	- point
//
// It reports false when neither label is present.
func parseLabelledLines(s string) (*ai.ArticleSummary, bool) {
	var out ai.ArticleSummary
	var points []string
	found := false
	inSummary := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := cutLabel(line, "記者"); ok {
			out.Reporter = core.Truncate(v, maxReporterRunes)
			found = true
			inSummary = false
			continue
		}
		if v, ok := cutLabel(line, "大綱"); ok {
			found = true
			inSummary = true
			if v != "" {
				points = append(points, v)
			}
			continue
		}
		if inSummary && line != "" {
			points = append(points, line)
		}
	}
	out.Summary = formatBullets(points)
	return &out, found
}

func cutLabel(line, label string) (string, bool) {
	for _, sep := range []string{"：", ":"} {
		if rest, ok := strings.CutPrefix(line, label+sep); ok {
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}

// isLetter returns true if the rune is an ASCII letter.
func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
