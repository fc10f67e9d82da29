//go:build linux

package fs

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"mooofs/internal/iomgr"
)

type DirentType = iomgr.DirentType

const (
	DirentUnknown = iomgr.DirentUnknown
	DirentFile    = iomgr.DirentFile
	DirentDir     = iomgr.DirentDir
	DirentLink    = iomgr.DirentLink
	DirentFIFO    = iomgr.DirentFIFO
	DirentSocket  = iomgr.DirentSocket
	DirentChar    = iomgr.DirentChar
	DirentBlock   = iomgr.DirentBlock
)

// Dirent is one directory entry. Name is RawName decoded with the directory's
// encoding; RawName is always the bytes the kernel returned.
type Dirent struct {
	Path    string // the directory the entry was read from
	Name    string
	RawName []byte
	Type    DirentType
}

// FullPath joins the directory with the raw name, so it names the entry whatever
// the encoding.
func (d *Dirent) FullPath() string { return filepath.Join(d.Path, string(d.RawName)) }

func (d *Dirent) IsFile() bool            { return d.Type == DirentFile }
func (d *Dirent) IsDirectory() bool       { return d.Type == DirentDir }
func (d *Dirent) IsSymbolicLink() bool    { return d.Type == DirentLink }
func (d *Dirent) IsFIFO() bool            { return d.Type == DirentFIFO }
func (d *Dirent) IsSocket() bool          { return d.Type == DirentSocket }
func (d *Dirent) IsCharacterDevice() bool { return d.Type == DirentChar }
func (d *Dirent) IsBlockDevice() bool     { return d.Type == DirentBlock }

// Names returns just the decoded names.
func Names(ents []*Dirent) []string {
	names := make([]string, len(ents))
	for i, e := range ents {
		names[i] = e.Name
	}
	return names
}

// Encoding selects how raw entry names are turned into Dirent.Name.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf8"
	EncodingLatin1 Encoding = "latin1"
	EncodingHex    Encoding = "hex"
	EncodingBase64 Encoding = "base64"
	// Name is left empty, only RawName is set
	EncodingNone Encoding = "none"
)

func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(strings.ToLower(s)); e {
	case "", "utf-8":
		return EncodingUTF8, nil
	case "binary":
		return EncodingLatin1, nil
	case "buffer":
		return EncodingNone, nil
	case EncodingUTF8, EncodingLatin1, EncodingHex, EncodingBase64, EncodingNone:
		return e, nil
	}
	return "", fmt.Errorf("%w: unknown encoding %q", ErrInvalidArgValue, s)
}

// Decode renders raw name bytes in e. EncodingNone gives "".
func (e Encoding) Decode(raw []byte) string {
	switch e {
	case EncodingLatin1:
		rs := make([]rune, len(raw))
		for i, b := range raw {
			rs[i] = rune(b)
		}
		return string(rs)
	case EncodingHex:
		return hex.EncodeToString(raw)
	case EncodingBase64:
		return base64.StdEncoding.EncodeToString(raw)
	case EncodingNone:
		return ""
	default:
		return strings.ToValidUTF8(string(raw), "�")
	}
}

func newDirent(dir string, raw iomgr.RawDirent, enc Encoding) *Dirent {
	return &Dirent{
		Path:    dir,
		Name:    enc.Decode(raw.Name),
		RawName: raw.Name,
		Type:    raw.Type,
	}
}
