package fetch

import (
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Bitcoin Tops $100,000 for the First Time</title>
  <meta name="description" content="The cryptocurrency crossed a six-figure price.">
  <meta name="author" content="Jordan Reyes">
  <meta property="article:published_time" content="2025-12-05T09:30:00Z">
  <style>body { color: red; }</style>
  <script>console.log("tracking");</script>
</head>
<body>
  <nav>Home | Markets | About</nav>
  <header>Site header</header>
  <article>
    <h1>Bitcoin Tops $100,000</h1>
    <p>Bitcoin traded above $100,000 on Friday morning.</p>
    <p>Analysts pointed to sustained institutional inflows.</p>
  </article>
  <aside>Related stories</aside>
  <footer>Copyright 2025</footer>
</body>
</html>`

func TestExtractContentUsesArticleAndStripsChrome(t *testing.T) {
	content, err := ExtractContent([]byte(samplePage), 8000)
	if err != nil {
		t.Fatalf("ExtractContent() error = %v", err)
	}

	if content.Title != "Bitcoin Tops $100,000 for the First Time" {
		t.Errorf("Title = %q", content.Title)
	}
	if content.Description != "The cryptocurrency crossed a six-figure price." {
		t.Errorf("Description = %q", content.Description)
	}
	if content.Author != "Jordan Reyes" {
		t.Errorf("Author = %q", content.Author)
	}
	if content.PublishedAt == nil {
		t.Fatal("PublishedAt = nil, want parsed date")
	}
	if got := content.PublishedAt.Format("2006-01-02"); got != "2025-12-05" {
		t.Errorf("PublishedAt = %s", got)
	}

	if !strings.Contains(content.Text, "institutional inflows") {
		t.Errorf("Text missing article body: %q", content.Text)
	}
	for _, chrome := range []string{"tracking", "color: red", "Home | Markets", "Related stories", "Copyright"} {
		if strings.Contains(content.Text, chrome) {
			t.Errorf("Text contains chrome %q", chrome)
		}
	}
}

func TestExtractContentFallsBackToBody(t *testing.T) {
	page := `<html><body><p>Plain page with no article tag.</p></body></html>`
	content, err := ExtractContent([]byte(page), 8000)
	if err != nil {
		t.Fatalf("ExtractContent() error = %v", err)
	}
	if !strings.Contains(content.Text, "no article tag") {
		t.Errorf("Text = %q", content.Text)
	}
}

func TestExtractContentCapsLength(t *testing.T) {
	long := "<html><body><article>" + strings.Repeat("word ", 5000) + "</article></body></html>"
	content, err := ExtractContent([]byte(long), 100)
	if err != nil {
		t.Fatalf("ExtractContent() error = %v", err)
	}
	if len(content.Text) > 100 {
		t.Errorf("Text length = %d, want <= 100", len(content.Text))
	}
}

func TestCapTextCutsAtWordBoundary(t *testing.T) {
	got := capText("alpha beta gamma delta", 12)
	if got != "alpha beta" {
		t.Errorf("capText = %q, want %q", got, "alpha beta")
	}
}
