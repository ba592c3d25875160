package diagram

import (
	"context"
	"fmt"
	"strings"
)

// Format names an output format.
type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatDOT     Format = "dot"
	FormatSVG     Format = "svg"
	FormatPNG     Format = "png"
	FormatASCII   Format = "ascii"
)

// Formats lists every supported format.
var Formats = []Format{FormatMermaid, FormatDOT, FormatSVG, FormatPNG, FormatASCII}

// ParseFormat resolves a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("diagram: unknown format %q", s)
}

// Binary reports whether the format produces non-text output.
func (f Format) Binary() bool {
	return f == FormatPNG
}

// Render renders model in the given format.
func Render(ctx context.Context, model *DiagramModel, f Format) ([]byte, error) {
	switch f {
	case FormatMermaid:
		return []byte(RenderMermaid(model)), nil
	case FormatASCII:
		return []byte(RenderASCII(model)), nil
	case FormatDOT:
		s, err := RenderDOT(ctx, model)
		return []byte(s), err
	case FormatSVG:
		return RenderSVG(ctx, model)
	case FormatPNG:
		return RenderImage(ctx, model)
	default:
		return nil, fmt.Errorf("diagram: unknown format %q", f)
	}
}
