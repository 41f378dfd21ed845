package files

type DirentType string

const (
	TypeFile   DirentType = "file"
	TypeFolder DirentType = "folder"
)

// Dirent is one entry of the workspace tree. Entries are replaced, never
// mutated, once they are published in a FileMap.
type Dirent struct {
	Type           DirentType `json:"type"`
	Content        string     `json:"content,omitempty"`
	IsBinary       bool       `json:"isBinary,omitempty"`
	IsLocked       bool       `json:"isLocked,omitempty"`
	LockedByFolder string     `json:"lockedByFolder,omitempty"`
}

func (d *Dirent) IsFile() bool { return d != nil && d.Type == TypeFile }

// FileMap maps a workspace-relative path to its entry. A nil entry marks a
// path that was removed.
type FileMap = map[string]*Dirent

// File is the read-only view of a file handed to lock checks.
type File struct {
	Path           string
	Content        string
	IsBinary       bool
	IsLocked       bool
	LockedByFolder string
}

func fileView(path string, d *Dirent) *File {
	return &File{
		Path:           path,
		Content:        d.Content,
		IsBinary:       d.IsBinary,
		IsLocked:       d.IsLocked,
		LockedByFolder: d.LockedByFolder,
	}
}
