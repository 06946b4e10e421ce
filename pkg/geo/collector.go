package geo

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Signals are the structural features extracted from submitted content
// that the scoring rules evaluate.
type Signals struct {
	Title            string  `json:"title"`
	WordCount        int     `json:"word_count"`
	SentenceCount    int     `json:"sentence_count"`
	AvgSentenceWords float64 `json:"avg_sentence_words"`
	HeadingCount     int     `json:"heading_count"`
	QuestionHeadings int     `json:"question_headings"`
	ListCount        int     `json:"list_count"`
	LinkCount        int     `json:"link_count"`
	StatisticCount   int     `json:"statistic_count"`
	IsHTML           bool    `json:"is_html"`
}

var statisticPattern = regexp.MustCompile(`\d+(\.\d+)?\s*(%|percent|million|billion|x\b)|\$\d`)

// CollectSignals extracts signals from content. HTML documents are
// walked node by node; anything else is treated as plain text.
func CollectSignals(content string) *Signals {
	trimmed := strings.TrimSpace(content)
	if looksLikeHTML(trimmed) {
		if doc, err := html.Parse(strings.NewReader(trimmed)); err == nil {
			sig := collectFromHTML(doc)
			sig.IsHTML = true
			return sig
		}
	}
	return collectFromText(trimmed)
}

func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "<html") ||
		strings.Contains(lower, "<body") ||
		strings.Contains(lower, "<p>") ||
		strings.Contains(lower, "<h1") ||
		strings.Contains(lower, "<div")
}

func collectFromHTML(doc *html.Node) *Signals {
	sig := &Signals{}
	var text strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if sig.Title == "" {
					sig.Title = strings.TrimSpace(nodeText(n))
				}
			case "h1", "h2", "h3", "h4", "h5", "h6":
				sig.HeadingCount++
				if strings.Contains(nodeText(n), "?") {
					sig.QuestionHeadings++
				}
			case "ul", "ol":
				sig.ListCount++
			case "a":
				for _, attr := range n.Attr {
					if attr.Key == "href" && attr.Val != "" && attr.Val != "#" {
						sig.LinkCount++
						break
					}
				}
			case "script", "style":
				return
			}
		}
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
			text.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	body := text.String()
	countProse(sig, body)
	return sig
}

func collectFromText(content string) *Signals {
	sig := &Signals{}

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if sig.Title == "" {
			sig.Title = strings.TrimPrefix(line, "# ")
		}
		if strings.HasPrefix(line, "#") {
			sig.HeadingCount++
			if strings.Contains(line, "?") {
				sig.QuestionHeadings++
			}
		}
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			// Count list blocks, not items.
			if i == 0 || !isListLine(lines[i-1]) {
				sig.ListCount++
			}
		}
		sig.LinkCount += strings.Count(line, "http://") + strings.Count(line, "https://")
	}

	countProse(sig, content)
	return sig
}

func isListLine(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ")
}

func countProse(sig *Signals, body string) {
	sig.WordCount = len(strings.Fields(body))
	sig.SentenceCount = strings.Count(body, ".") + strings.Count(body, "!") + strings.Count(body, "?")
	if sig.SentenceCount > 0 {
		sig.AvgSentenceWords = float64(sig.WordCount) / float64(sig.SentenceCount)
	}
	sig.StatisticCount = len(statisticPattern.FindAllString(body, -1))
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
