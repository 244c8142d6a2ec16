package browser

import "strings"

// PlotRecord is one drawing command captured during a redraw bracket, in
// arrival order. Tag is the leading token of the PLOT line (e.g. "TEXT",
// "BITMAP"); Args holds every token after it, untouched, so callers can
// parse by leading subtag.
type PlotRecord struct {
	Tag  string
	Args []string
}

// Text returns the rendered text of a "TEXT x <x> y <y> <text tokens...>"
// plot record, joined by a single space. It returns "" for any other tag.
func (p PlotRecord) Text() string {
	if p.Tag != "TEXT" {
		return ""
	}
	toks := p.Args
	i := 0
	if len(toks) >= 4 && toks[0] == "x" && toks[2] == "y" {
		i = 4
	}
	return strings.Join(toks[i:], " ")
}

// Fields parses BITMAP-style "key value key value..." records into a map,
// for callers that want width/height/x/y rather than the raw text shape.
func (p PlotRecord) Fields() map[string]string {
	m := make(map[string]string)
	for i := 0; i+1 < len(p.Args); i += 2 {
		m[p.Args[i]] = p.Args[i+1]
	}
	return m
}
