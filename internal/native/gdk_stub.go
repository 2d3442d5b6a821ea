//go:build !gtk

package native

// GdkPixbuf is unavailable without the gtk build tag.
type GdkPixbuf struct{}

func GdkAvailable() bool { return false }

func NewGdkPixbuf(w, h int) (*GdkPixbuf, error) { return nil, ErrNoGdk }

func AllocGdkPixbuf(w, h int) (Buffer, error) { return nil, ErrNoGdk }

func (g *GdkPixbuf) Width() int     { return 0 }
func (g *GdkPixbuf) Height() int    { return 0 }
func (g *GdkPixbuf) RowStride() int { return 0 }
func (g *GdkPixbuf) Pixels() View   { return View{} }

func (g *GdkPixbuf) valid() bool { return false }
