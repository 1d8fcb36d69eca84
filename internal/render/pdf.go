package render

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/thebtf/procluster/pkg/hierarchy"
)

// Page geometry in millimetres on landscape A4.
const (
	pageWidth    = 297.0
	pageHeight   = 210.0
	marginLeft   = 22.0
	marginRight  = 12.0
	marginTop    = 22.0
	marginBottom = 45.0
	yTicks       = 5
)

// RenderPDF draws the dendrogram on a single landscape page. A non-nil
// threshold is drawn as a red dash-dot line across the plot.
func RenderPDF(tree *hierarchy.Tree, names []string, threshold *float64) ([]byte, error) {
	d, err := Layout(tree, names)
	if err != nil {
		return nil, err
	}
	colors, err := Colors(tree, names, threshold)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetCreationDate(time.Unix(0, 0).UTC())
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	top := d.MaxHeight
	if threshold != nil && *threshold > top {
		top = *threshold
	}
	if top <= 0 {
		top = 1
	}
	top *= 1.05

	plotW := pageWidth - marginLeft - marginRight
	plotH := pageHeight - marginTop - marginBottom
	baseY := pageHeight - marginBottom
	px := func(x float64) float64 { return marginLeft + x/d.Width*plotW }
	py := func(h float64) float64 { return baseY - h/top*plotH }

	pdf.SetFont("Arial", "B", 12)
	pdf.SetXY(marginLeft, 10)
	pdf.CellFormat(plotW, 6, tr("Dendrogram ("+title(tree, threshold)+")"), "", 0, "C", false, 0, "")

	// y axis with ticks
	pdf.SetFont("Arial", "", 8)
	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.2)
	pdf.Line(marginLeft, baseY, marginLeft, marginTop)
	for i := 0; i <= yTicks; i++ {
		h := top / 1.05 * float64(i) / yTicks
		y := py(h)
		pdf.Line(marginLeft-1.5, y, marginLeft, y)
		label := strconv.FormatFloat(h, 'f', 2, 64)
		pdf.Text(marginLeft-2.5-pdf.GetStringWidth(label), y+1, label)
	}

	pdf.SetLineWidth(0.35)
	for k, link := range d.Links {
		r, g, b := rgb(colors[k])
		pdf.SetDrawColor(r, g, b)
		pdf.Line(px(link.LeftX), py(link.LeftY), px(link.LeftX), py(link.Height))
		pdf.Line(px(link.LeftX), py(link.Height), px(link.RightX), py(link.Height))
		pdf.Line(px(link.RightX), py(link.Height), px(link.RightX), py(link.RightY))
	}

	if threshold != nil {
		pdf.SetDrawColor(255, 0, 0)
		pdf.SetDashPattern([]float64{3, 1.2, 0.6, 1.2}, 0)
		pdf.Line(marginLeft, py(*threshold), pageWidth-marginRight, py(*threshold))
		pdf.SetDashPattern([]float64{}, 0)
	}

	// leaf labels, rotated to read bottom-up
	pdf.SetTextColor(0, 0, 0)
	for _, l := range d.Leaves {
		x := px(l.X)
		pdf.TransformBegin()
		pdf.TransformRotate(90, x, baseY+2)
		pdf.Text(x-pdf.GetStringWidth(tr(l.Name)), baseY+3, tr(l.Name))
		pdf.TransformEnd()
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// rgb parses "#rrggbb"; anything else is black.
func rgb(color string) (int, int, int) {
	if len(color) != 7 || color[0] != '#' {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(color[1:], 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
