package console

import "github.com/fatih/color"

var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	// Address highlights bus and memory addresses.
	Address = color.New(color.FgCyan).SprintFunc()
)

// Pictograms prefixing device output.
const (
	PictoChip   = "🔲"
	PictoPin    = "📌"
	PictoStop   = "🚫"
	PictoScroll = "📜"
	PictoGauge  = "🌡"
	PictoBell   = "🔔"
)
