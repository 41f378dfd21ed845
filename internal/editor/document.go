package editor

// ScrollPosition is the viewport offset of a document, in pixels.
type ScrollPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Document is the editor's view of one open file.
type Document struct {
	Value    string          `json:"value"`
	FilePath string          `json:"filePath"`
	IsBinary bool            `json:"isBinary"`
	Scroll   *ScrollPosition `json:"scroll,omitempty"`
}

// Documents maps a file path to its document. The key always equals the
// document's FilePath.
type Documents = map[string]Document

// Equal reports whether two documents carry the same fields, comparing
// scroll positions by value.
func (d Document) Equal(o Document) bool {
	if d.Value != o.Value || d.FilePath != o.FilePath || d.IsBinary != o.IsBinary {
		return false
	}
	switch {
	case d.Scroll == nil && o.Scroll == nil:
		return true
	case d.Scroll == nil || o.Scroll == nil:
		return false
	default:
		return *d.Scroll == *o.Scroll
	}
}

func sameDocument(a, b *Document) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
