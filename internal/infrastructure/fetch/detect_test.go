package fetch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSufficient(t *testing.T) {
	article := `<!DOCTYPE html><html><head><title>Test Page</title></head><body><main><article>
<h1>Article Title</h1>
<p>` + strings.Repeat("Lorem ipsum dolor sit amet, consectetur adipiscing elit. ", 6) + `</p>
</article></main></body></html>`

	tests := []struct {
		name string
		html string
		want bool
	}{
		{name: "static page with content", html: article, want: true},
		{name: "spa shell", html: `<!DOCTYPE html><html><head><meta charset="utf-8"><title>App</title></head><body><div id="root"></div><script src="/static/js/main.chunk.js"></script>` + strings.Repeat(" ", 200) + `</body></html>`, want: false},
		{name: "too short", html: `<html><body>hi</body></html>`, want: false},
		{name: "script heavy", html: `<html><body><script>` + strings.Repeat("var a = 1;", 200) + `</script><p>tiny</p></body></html>`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSufficient([]byte(tt.html)))
		})
	}
}

func TestTextMarkupRatio(t *testing.T) {
	text, markup := textMarkupRatio([]byte(`<div>Hello World</div>`))
	assert.Equal(t, 10, text)
	assert.Equal(t, 11, markup)

	text, _ = textMarkupRatio([]byte(`<style>p{color:red}</style><p>ok</p>`))
	assert.Equal(t, 2, text)
}
