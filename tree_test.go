package couchsite

import "testing"

func TestRenderTree(t *testing.T) {
	names := []string{"js/lib/app.js", "index.html", "css/b.css", "css/a.css"}
	expect := `site
├── css
│   ├── a.css
│   └── b.css
├── index.html
└── js
    └── lib
        └── app.js
`
	got := RenderTree("site", names)
	tassert(t, got == expect, "expected:\n%s\ngot:\n%s", expect, got)
	// input is left alone
	tassert(t, names[0] == "js/lib/app.js", "%v", names)
}

func TestRenderTreeEmpty(t *testing.T) {
	got := RenderTree(".site", nil)
	tassert(t, got == ".site\n", "got %q", got)
}
