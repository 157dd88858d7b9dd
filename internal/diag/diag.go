// Package diag carries the compiler's error kinds and the reporter used to
// surface diagnostics to the user.
package diag

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Kind classifies an Error.
type Kind int

const (
	ParseError Kind = iota
	TypeError
	UndefinedID
	ConversionError
	NoCoverage
	PlacementError
	EmitError
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "parse error"
	case TypeError:
		return "type error"
	case UndefinedID:
		return "undefined id"
	case ConversionError:
		return "conversion error"
	case NoCoverage:
		return "no coverage"
	case PlacementError:
		return "placement error"
	case EmitError:
		return "emit error"
	default:
		return "error"
	}
}

// Error is the tagged error returned by every fallible compiler API.
// ID names the instruction or node the error is about, when there is one.
type Error struct {
	Kind Kind
	ID   string
	Msg  string
}

func (e *Error) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.ID, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Errorf builds an Error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// At builds an Error of the given kind attached to id.
func At(kind Kind, id string, format string, args ...any) *Error {
	return &Error{Kind: kind, ID: id, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err wraps an Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// Severity of a reported diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Diagnostic is one reported message.
type Diagnostic struct {
	Severity Severity `json:"-"`
	Level    string   `json:"level"`
	Kind     string   `json:"kind,omitempty"`
	ID       string   `json:"id,omitempty"`
	Stage    string   `json:"stage,omitempty"`
	Message  string   `json:"message"`
}

// Reporter writes diagnostics as text or JSON lines and counts errors.
type Reporter struct {
	mu       sync.Mutex
	w        io.Writer
	format   string
	errors   int
	warnings int
}

// NewReporter returns a reporter writing to w. format is "text" or "json";
// anything else falls back to text.
func NewReporter(w io.Writer, format string) *Reporter {
	if format != "json" {
		format = "text"
	}
	return &Reporter{w: w, format: format}
}

// Error reports err. Errors produced by this package keep their kind and id.
func (r *Reporter) Error(stage string, err error) {
	if err == nil {
		return
	}
	d := Diagnostic{Severity: SeverityError, Stage: stage, Message: err.Error()}
	var de *Error
	if errors.As(err, &de) {
		d.Kind = de.Kind.String()
		d.ID = de.ID
	}
	r.report(d)
}

// Errorf reports a formatted error message.
func (r *Reporter) Errorf(format string, args ...any) {
	r.report(Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(format, args...)})
}

// Warning reports a warning attached to id.
func (r *Reporter) Warning(id string, msg string) {
	r.report(Diagnostic{Severity: SeverityWarning, ID: id, Message: msg})
}

// HasErrors reports whether at least one error was reported.
func (r *Reporter) HasErrors() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors > 0
}

// Count returns the number of errors and warnings reported so far.
func (r *Reporter) Count() (errs, warnings int) {
	if r == nil {
		return 0, 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors, r.warnings
}

func (r *Reporter) report(d Diagnostic) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.Severity == SeverityWarning {
		r.warnings++
	} else {
		r.errors++
	}
	d.Level = d.Severity.String()
	if r.w == nil {
		return
	}
	if r.format == "json" {
		data, err := json.Marshal(d)
		if err != nil {
			fmt.Fprintf(r.w, "%s: %s\n", d.Level, d.Message)
			return
		}
		fmt.Fprintln(r.w, string(data))
		return
	}
	prefix := d.Level
	if d.Stage != "" {
		prefix = d.Stage + ": " + prefix
	}
	if d.ID != "" && d.Kind == "" {
		fmt.Fprintf(r.w, "%s [%s]: %s\n", prefix, d.ID, d.Message)
		return
	}
	fmt.Fprintf(r.w, "%s: %s\n", prefix, d.Message)
}
