package feed

import (
	"net/url"
	"strings"
	"testing"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Understanding Goroutines</title></head>
<body>
  <nav><a href="/">Home</a> <a href="/about">About</a></nav>
  <article>
    <h1>Understanding Goroutines</h1>
    <p>Goroutines are lightweight threads managed by the Go runtime. They make it cheap to run
    thousands of concurrent tasks, and the scheduler multiplexes them onto a small number of OS threads.</p>
    <p>Channels let goroutines communicate without sharing memory. A send blocks until a receiver is
    ready on an unbuffered channel, which gives a natural synchronization point between tasks.</p>
    <p>Read the <a href="/docs/effective-go">effective Go guide</a> for more patterns, including worker
    pools, pipelines and fan-out fan-in designs that are common in production services.</p>
  </article>
  <footer>Copyright 2026</footer>
  <script>console.log("tracking")</script>
</body>
</html>`

func TestContentExtractor_ValidHTML(t *testing.T) {
	pageURL, _ := url.Parse("https://blog.example.com/posts/goroutines")

	content, err := NewContentExtractor().Run([]byte(articleHTML), pageURL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !strings.Contains(content, "lightweight threads") {
		t.Error("Expected article body in extracted content")
	}
	if strings.Contains(content, "tracking") {
		t.Error("Expected scripts to be removed")
	}
	if !strings.Contains(content, "https://blog.example.com/docs/effective-go") {
		t.Error("Expected relative links to be resolved against the page URL")
	}
}

func TestContentExtractor_EmptyData(t *testing.T) {
	for _, data := range [][]byte{nil, {}} {
		_, err := NewContentExtractor().Run(data, nil)
		if err == nil || err.Error() != "HTML data is empty" {
			t.Errorf("Expected empty data error, got %v", err)
		}
	}
}
