package corr

import (
	"path"
	"strings"

	"github.com/pipecorr/pipecorr/schema"
)

// ClassifyFormat maps a path onto the closed set of recognized formats.
func ClassifyFormat(p string) schema.Format {
	name := path.Base(p)
	switch {
	case strings.HasSuffix(name, ".nii"), strings.HasSuffix(name, ".nii.gz"):
		return schema.FormatVolumetric
	case strings.HasSuffix(name, ".csv"), strings.HasSuffix(name, ".tsv"):
		return schema.FormatDelimited
	case strings.HasSuffix(name, ".1D"), strings.HasSuffix(name, ".txt"):
		return schema.FormatVector
	default:
		return schema.FormatUnknown
	}
}

// isTabular reports whether a format is read as a numeric table.
func isTabular(f schema.Format) bool {
	return f == schema.FormatDelimited || f == schema.FormatVector
}
