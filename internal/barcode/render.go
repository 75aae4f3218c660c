package barcode

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// Layout of rendered bar graphics, in user units
const (
	BarWidth        = 2
	BarSpacing      = 4
	DigitBarHeight  = 50
	LetterBarHeight = 35
	Margin          = 10
	LabelHeight     = 20
	LabelFontSize   = 12
)

// Bar is a single filled rectangle
type Bar struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Caption is the human readable text drawn beneath the bars
type Caption struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	FontSize int    `json:"font_size"`
	Text     string `json:"text"`
}

// Graphic is a vector description of a rendered identifier. It is purely
// presentational and not a scannable symbology.
type Graphic struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Bars   []Bar   `json:"bars"`
	Label  Caption `json:"label"`
}

// RenderBars lays out one bar per character of identifier, taller for ASCII
// digits, bottom aligned, followed by a centered label. Any input renders.
func RenderBars(identifier string) Graphic {
	runes := []rune(identifier)
	g := Graphic{
		Width:  2*Margin + len(runes)*BarSpacing,
		Height: 2*Margin + DigitBarHeight + LabelHeight,
		Bars:   make([]Bar, 0, len(runes)),
	}
	for i, r := range runes {
		h := LetterBarHeight
		if r >= '0' && r <= '9' {
			h = DigitBarHeight
		}
		g.Bars = append(g.Bars, Bar{
			X:      Margin + i*BarSpacing,
			Y:      Margin + DigitBarHeight - h,
			Width:  BarWidth,
			Height: h,
		})
	}
	g.Label = Caption{
		X:        g.Width / 2,
		Y:        Margin + DigitBarHeight + LabelHeight - 4,
		FontSize: LabelFontSize,
		Text:     identifier,
	}
	return g
}

// SVG encodes the graphic as a standalone SVG document
func (g Graphic) SVG() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		g.Width, g.Height, g.Width, g.Height)
	fmt.Fprintf(&buf, `<rect width="%d" height="%d" fill="white"/>`, g.Width, g.Height)
	for _, b := range g.Bars {
		fmt.Fprintf(&buf, `<rect x="%d" y="%d" width="%d" height="%d" fill="black"/>`, b.X, b.Y, b.Width, b.Height)
	}
	fmt.Fprintf(&buf, `<text x="%d" y="%d" font-family="monospace" font-size="%d" text-anchor="middle">`,
		g.Label.X, g.Label.Y, g.Label.FontSize)
	// EscapeText only fails if the writer fails; bytes.Buffer does not
	_ = xml.EscapeText(&buf, []byte(g.Label.Text))
	buf.WriteString(`</text></svg>`)
	return buf.Bytes()
}
