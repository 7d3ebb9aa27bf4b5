// Package archive extracts submitted homework archives into a working directory.
package archive

import "strings"

// Format is the container format of an archive. The set is closed.
type Format int

// Supported archive formats
const (
	Zip Format = iota
	Tar
	Rar
	SevenZip
)

var formatByExtension = map[string]Format{
	".zip": Zip,
	".tar": Tar,
	".rar": Rar,
	".7z":  SevenZip,
}

// FormatForExtension maps a file extension (with leading dot) to its Format.
// The lookup is case-insensitive.
func FormatForExtension(ext string) (Format, bool) {
	f, ok := formatByExtension[strings.ToLower(ext)]
	return f, ok
}

// SupportedExtensions returns the recognised extensions in a stable order.
func SupportedExtensions() []string {
	return []string{".zip", ".tar", ".rar", ".7z"}
}

func (f Format) String() string {
	switch f {
	case Zip:
		return "zip"
	case Tar:
		return "tar"
	case Rar:
		return "rar"
	case SevenZip:
		return "7z"
	default:
		return "unknown"
	}
}
