package backup

import (
	"errors"
	"io/fs"
	"strings"
	"syscall"
)

// ErrorKind classifies a copy failure.
type ErrorKind int

const (
	KindIO ErrorKind = iota
	KindAccessDenied
	KindInvalidPath
	KindPathTooLong
	KindNotFound
	KindNotSupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindAccessDenied:
		return "AccessDenied"
	case KindInvalidPath:
		return "InvalidPath"
	case KindPathTooLong:
		return "PathTooLong"
	case KindNotFound:
		return "NotFound"
	case KindNotSupported:
		return "NotSupported"
	default:
		return "IOError"
	}
}

// Classify maps an I/O failure to its ErrorKind. Anything unrecognised is KindIO.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return KindAccessDenied
	case errors.Is(err, syscall.ENAMETOOLONG):
		return KindPathTooLong
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, fs.ErrInvalid), errors.Is(err, syscall.EINVAL):
		return KindInvalidPath
	case errors.Is(err, errors.ErrUnsupported):
		return KindNotSupported
	default:
		return KindIO
	}
}

// Record is one failed file or directory.
type Record struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Source  string    `json:"source"`
	Dest    string    `json:"dest"`
	File    string    `json:"file,omitempty"` // empty for directory errors
}

func newRecord(err error, source, dest, file string) Record {
	return Record{
		Kind:    Classify(err),
		Message: err.Error(),
		Source:  source,
		Dest:    dest,
		File:    file,
	}
}

// Report collects the failures of one copy, in discovery order.
type Report struct {
	Records []Record `json:"records"`
}

func (r *Report) Add(rec Record) {
	r.Records = append(r.Records, rec)
}

// Merge appends every record of other.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	r.Records = append(r.Records, other.Records...)
}

func (r *Report) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Records)
}

func (r *Report) Empty() bool {
	return r.Len() == 0
}

// Text renders the report in journal form, one blank line after each record.
func (r *Report) Text() string {
	var sb strings.Builder
	for _, rec := range r.Records {
		sb.WriteString(rec.Kind.String())
		sb.WriteString(":\n")
		sb.WriteString(rec.Message)
		sb.WriteString("\n")
		if rec.File != "" {
			sb.WriteString("file: ")
			sb.WriteString(rec.File)
			sb.WriteString("\n")
		}
		sb.WriteString("from: ")
		sb.WriteString(rec.Source)
		sb.WriteString("\nto: ")
		sb.WriteString(rec.Dest)
		sb.WriteString("\n\n")
	}
	return sb.String()
}
