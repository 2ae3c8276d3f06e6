package fetch

import (
	"bytes"
	"strings"
)

// spaIndicators mark an application shell that renders its content client-side
var spaIndicators = [][]byte{
	[]byte(`<div id="root"></div>`),
	[]byte(`<div id="app"></div>`),
	[]byte(`<div id="__next"></div>`),
	[]byte("<noscript>you need to enable javascript"),
	[]byte("<noscript>enable javascript"),
}

// IsSufficient reports whether an HTML body carries enough visible text to be
// used without rendering it in a browser.
func IsSufficient(html []byte) bool {
	if len(html) < 256 {
		return false
	}

	text, markup := textMarkupRatio(html)
	total := text + markup
	if total == 0 {
		return false
	}

	// Less than 10% text is likely a shell
	if float64(text)/float64(total) < 0.10 {
		return false
	}
	if text < 200 {
		return false
	}

	lower := bytes.ToLower(html)
	for _, ind := range spaIndicators {
		if bytes.Contains(lower, ind) {
			return false
		}
	}
	return true
}

// textMarkupRatio counts visible non-space text bytes against markup bytes.
// Script and style bodies count as markup.
func textMarkupRatio(html []byte) (text, markup int) {
	s := string(html)
	inTag := false

	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == '<':
			rest := strings.ToLower(s[i:min(len(s), i+8)])
			if closer := rawCloser(rest); closer != "" {
				idx := strings.Index(strings.ToLower(s[i:]), closer)
				if idx == -1 {
					markup += len(s) - i
					return text, markup
				}
				end := i + idx + len(closer)
				if gt := strings.IndexByte(s[end:], '>'); gt >= 0 {
					end += gt + 1
				}
				markup += end - i
				i = end
				continue
			}
			inTag = true
			markup++
		case ch == '>':
			inTag = false
			markup++
		case inTag:
			markup++
		case ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r':
			text++
		}
		i++
	}
	return text, markup
}

func rawCloser(tagPrefix string) string {
	switch {
	case strings.HasPrefix(tagPrefix, "<script"):
		return "</script"
	case strings.HasPrefix(tagPrefix, "<style"):
		return "</style"
	}
	return ""
}
