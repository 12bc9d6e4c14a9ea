package fileInfo

import (
	"os"

	"github.com/gabriel-vasile/mimetype"
)

const defaultMimeType = "application/octet-stream"

// FileNode describes a local file that is about to be announced to the peer.
type FileNode struct {
	Name     string `json:"name"`
	IsDir    bool   `json:"is_dir"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
	Checksum string `json:"checksum,omitempty"`
	Path     string `json:"-"`
}

// CreateNode stats path and sniffs its content type. The sha256 checksum is
// only computed when withChecksum is set since it costs a full read of the file.
func CreateNode(path string, withChecksum bool) (FileNode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileNode{}, err
	}
	node := FileNode{
		Name:  info.Name(),
		IsDir: info.IsDir(),
		Size:  info.Size(),
		Path:  path,
	}
	if node.IsDir {
		return node, nil
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		node.MimeType = defaultMimeType
	} else {
		node.MimeType = mime.String()
	}

	if withChecksum {
		if _, err := node.CalcChecksum(); err != nil {
			return FileNode{}, err
		}
	}
	return node, nil
}
