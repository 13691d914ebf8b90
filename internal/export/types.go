// Package export renders published events as ICS calendar feeds and PDF
// one-pagers.
package export

import (
	"errors"
)

// Format represents the export output format
type Format string

const (
	FormatICS Format = "ics"
	FormatPDF Format = "pdf"
)

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
