package outposterr

import (
	"fmt"
	"strings"
)

// FieldError is a problem of a field in a settings document, like "probe.attempts".
type FieldError struct {
	Path string
	Err  error
}

func (e FieldError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e FieldError) Unwrap() error {
	return e.Err
}

// List is a list of problems of the same kind.
type List struct {
	// Kind is the error like outpost.ErrInvalidConfig.
	Kind error

	Problems []error
}

// Error shows the kind and each problem in an indented line.
func (l List) Error() string {
	var sb strings.Builder
	sb.WriteString(l.Kind.Error())
	sb.WriteByte(':')

	for _, p := range l.Problems {
		for _, line := range strings.Split(p.Error(), "\n") {
			sb.WriteString("\n  ")
			sb.WriteString(line)
		}
	}

	return sb.String()
}

func (l List) Unwrap() []error {
	return append([]error{l.Kind}, l.Problems...)
}

// ListBuilder collects problems of fields.
//
// A builder made by In shares the problems with its parent, and prefixes the path of fields.
type ListBuilder struct {
	kind     error
	prefix   string
	problems *[]error
}

// NewListBuilder makes a ListBuilder for problems of the kind.
func NewListBuilder(kind error) *ListBuilder {
	return &ListBuilder{
		kind:     kind,
		problems: &[]error{},
	}
}

// In returns a builder for the fields under the section.
func (b *ListBuilder) In(section string) *ListBuilder {
	return &ListBuilder{
		kind:     b.kind,
		prefix:   b.prefix + section + ".",
		problems: b.problems,
	}
}

// Addf adds a problem of the field.
func (b *ListBuilder) Addf(field, format string, args ...interface{}) {
	*b.problems = append(*b.problems, FieldError{
		Path: b.prefix + field,
		Err:  fmt.Errorf(format, args...),
	})
}

// Build returns List if any problem was added, otherwise nil.
func (b *ListBuilder) Build() error {
	if len(*b.problems) == 0 {
		return nil
	}

	return List{
		Kind:     b.kind,
		Problems: *b.problems,
	}
}
