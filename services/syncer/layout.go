package syncer

// Layout describes where the renderer placed each line, in pixels (or any
// consistent unit).
type Layout interface {
	LineTop(i int) float64
	LineHeight(i int) float64
	ViewportHeight() float64
	ContentHeight() float64
}

// RowLayout places every line on one row of equal height, as a terminal does.
type RowLayout struct {
	Lines    int
	Viewport int
}

func (l RowLayout) LineTop(i int) float64   { return float64(i) }
func (l RowLayout) LineHeight(int) float64  { return 1 }
func (l RowLayout) ViewportHeight() float64 { return float64(l.Viewport) }
func (l RowLayout) ContentHeight() float64  { return float64(l.Lines) }
