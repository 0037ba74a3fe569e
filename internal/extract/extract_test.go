package extract

import "testing"

func TestLinksTruncatesAtDocumentID(t *testing.T) {
	text := "Filing attached: https://docs.google.com/document/d/1AbC_d-3f/edit?usp=sharing&tab=t.0 thanks"
	links := Links(text)
	if len(links) != 1 {
		t.Fatalf("got %d links", len(links))
	}
	if links[0] != "https://docs.google.com/document/d/1AbC_d-3f" {
		t.Fatalf("link = %q", links[0])
	}
}

func TestLinksMultipleAndDrive(t *testing.T) {
	text := "https://docs.google.com/document/d/aaa11 and https://drive.google.com/file/d/bbb22/view plus https://drive.google.com/open?id=ccc33"
	links := Links(text)
	if len(links) != 3 {
		t.Fatalf("got %d links: %v", len(links), links)
	}
	if links[1] != "https://drive.google.com/file/d/bbb22" {
		t.Fatalf("drive link = %q", links[1])
	}
	if links[2] != "https://drive.google.com/open?id=ccc33" {
		t.Fatalf("open link = %q", links[2])
	}
}

func TestFirstEmptyWhenNoLink(t *testing.T) {
	if got := First("no links here, just text"); got != "" {
		t.Fatalf("got %q", got)
	}
}
