package geo

import (
	"strings"
	"testing"
)

func TestCollectSignalsHTML(t *testing.T) {
	content := `<html><head><title>GEO Guide</title></head><body>
<h1>What is generative engine optimization?</h1>
<p>Over 60% of queries now get AI answers. Usage grew 3x in 2024.</p>
<h2>How it works</h2>
<ul><li>structure</li><li>citations</li></ul>
<p>See <a href="https://example.com/study">the study</a> and
<a href="https://example.com/data">the data</a>.</p>
</body></html>`

	sig := CollectSignals(content)

	if !sig.IsHTML {
		t.Fatal("expected HTML detection")
	}
	if sig.Title != "GEO Guide" {
		t.Errorf("Title = %q", sig.Title)
	}
	if sig.HeadingCount != 2 {
		t.Errorf("HeadingCount = %d, want 2", sig.HeadingCount)
	}
	if sig.QuestionHeadings != 1 {
		t.Errorf("QuestionHeadings = %d, want 1", sig.QuestionHeadings)
	}
	if sig.ListCount != 1 {
		t.Errorf("ListCount = %d, want 1", sig.ListCount)
	}
	if sig.LinkCount != 2 {
		t.Errorf("LinkCount = %d, want 2", sig.LinkCount)
	}
	if sig.StatisticCount < 2 {
		t.Errorf("StatisticCount = %d, want >= 2", sig.StatisticCount)
	}
	if sig.WordCount == 0 {
		t.Error("WordCount should not be zero")
	}
}

func TestCollectSignalsPlainText(t *testing.T) {
	content := "# Why choose us?\n\nWe serve 40% of the market.\n\n- fast\n- reliable\n\nMore at https://example.com.\n"

	sig := CollectSignals(content)

	if sig.IsHTML {
		t.Fatal("plain text misdetected as HTML")
	}
	if sig.Title != "Why choose us?" {
		t.Errorf("Title = %q", sig.Title)
	}
	if sig.HeadingCount != 1 || sig.QuestionHeadings != 1 {
		t.Errorf("headings = %d/%d, want 1/1", sig.HeadingCount, sig.QuestionHeadings)
	}
	if sig.ListCount != 1 {
		t.Errorf("ListCount = %d, want 1", sig.ListCount)
	}
	if sig.LinkCount != 1 {
		t.Errorf("LinkCount = %d, want 1", sig.LinkCount)
	}
}

func TestCollectSignalsSentences(t *testing.T) {
	content := strings.Repeat("Short sentence here. ", 10)
	sig := CollectSignals(content)
	if sig.SentenceCount != 10 {
		t.Errorf("SentenceCount = %d, want 10", sig.SentenceCount)
	}
	if sig.AvgSentenceWords != 3 {
		t.Errorf("AvgSentenceWords = %f, want 3", sig.AvgSentenceWords)
	}
}
