package reader

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"
)

// Style is the reader's typographic settings.
type Style struct {
	FontSize        float64 `json:"fontSize"`
	Spacing         float64 `json:"spacing"`
	FontColor       string  `json:"fontColor"`
	BackgroundColor string  `json:"backgroundColor"`
	Justify         bool    `json:"justify"`
	Hyphenate       bool    `json:"hyphenate"`
	TopMargin       int     `json:"topMargin"`
	BottomMargin    int     `json:"bottomMargin"`
	SideMargin      int     `json:"sideMargin"`
	Scroll          bool    `json:"scroll"`
}

// DefaultStyle returns the built-in style.
func DefaultStyle() Style {
	return Style{
		FontSize:        1.2,
		Spacing:         1.5,
		FontColor:       "#66ccff",
		BackgroundColor: "#000000",
		Justify:         true,
		Hyphenate:       true,
		TopMargin:       100,
		BottomMargin:    100,
		SideMargin:      5,
	}
}

var styleTemplate = template.Must(template.New("style").Funcs(template.FuncMap{
	"num": func(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) },
}).Parse(`@namespace epub "http://www.idpf.org/2007/ops";
html {
    color: {{.FontColor}};
    background-color: {{.BackgroundColor}};
    font-size: {{num .FontSize}}em;
}
@media (prefers-color-scheme: dark) {
    a:link {
        color: lightblue;
    }
}
p, li, blockquote, dd, div {
    line-height: {{num .Spacing}};
    text-align: {{if .Justify}}justify{{else}}start{{end}};
    -webkit-hyphens: {{if .Hyphenate}}auto{{else}}manual{{end}};
    hyphens: {{if .Hyphenate}}auto{{else}}manual{{end}};
    -webkit-hyphenate-limit-before: 3;
    -webkit-hyphenate-limit-after: 2;
    -webkit-hyphenate-limit-lines: 2;
    hanging-punctuation: allow-end last;
    widows: 2;
}
[align="left"] { text-align: left; }
[align="right"] { text-align: right; }
[align="center"] { text-align: center; }
[align="justify"] { text-align: justify; }
pre {
    white-space: pre-wrap !important;
}
aside[epub|type~="endnote"],
aside[epub|type~="footnote"],
aside[epub|type~="note"],
aside[epub|type~="rearnote"] {
    display: none;
}
`))

// StyleCSS renders the stylesheet injected into every section.
func StyleCSS(s Style) string {
	var buf bytes.Buffer
	if err := styleTemplate.Execute(&buf, s); err != nil {
		panic(fmt.Sprintf("style template: %v", err))
	}
	return buf.String()
}

// Flow returns the flow attribute value for the scroll setting.
func Flow(scroll bool) string {
	if scroll {
		return FlowScrolled
	}
	return FlowPaginated
}

// ApplyStyle sets the layout attributes and injects the stylesheet.
func ApplyStyle(s Surface, style Style) {
	s.SetAttribute(AttrFlow, Flow(style.Scroll))
	s.SetAttribute(AttrTopMargin, fmt.Sprintf("%dpx", style.TopMargin))
	s.SetAttribute(AttrBottomMargin, fmt.Sprintf("%dpx", style.BottomMargin))
	s.SetAttribute(AttrGap, fmt.Sprintf("%d%%", style.SideMargin))
	s.SetStyles(StyleCSS(style))
}
