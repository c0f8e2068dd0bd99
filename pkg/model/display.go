package model

// Alignment of a display column.
type Alignment int

// Column alignments understood by the renderer.
const (
	AlignLeft Alignment = iota
	AlignRight
	AlignCenter
)

// Table is a fully formatted table. Cells are final strings; the renderer
// never recomputes anything from them.
type Table struct {
	Title   string      `json:"title"`
	Headers []string    `json:"headers"`
	Align   []Alignment `json:"align,omitempty"`
	Rows    [][]string  `json:"rows"`
	Footer  []string    `json:"footer,omitempty"`
}

// Series is a set of aligned time series for plotting. Values[i] is the
// series named Legends[i]; every series has one point per label.
type Series struct {
	Title   string      `json:"title"`
	Labels  []string    `json:"labels"`
	Legends []string    `json:"legends"`
	Values  [][]float64 `json:"values"`
}
