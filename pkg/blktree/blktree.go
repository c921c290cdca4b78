// Package blktree implements the in-memory BLK tree model: value leaves,
// structs, and (after post-processing) merged arrays, plus the duplicate-key
// merger and override-application passes. See spec sections 3 and 4.8.
package blktree

import (
	"strings"

	"github.com/bgrewell/vromfs-kit/pkg/blkerr"
)

// ScalarKind is the one-byte BLK type code for a primitive value.
type ScalarKind byte

const (
	KindStr     ScalarKind = 0x01
	KindInt     ScalarKind = 0x02
	KindFloat   ScalarKind = 0x03
	KindFloat2  ScalarKind = 0x04
	KindFloat3  ScalarKind = 0x05
	KindFloat4  ScalarKind = 0x06
	KindInt2    ScalarKind = 0x07
	KindInt3    ScalarKind = 0x08
	KindBool    ScalarKind = 0x09
	KindColor   ScalarKind = 0x0A
	KindFloat12 ScalarKind = 0x0B
	KindLong    ScalarKind = 0x0C
)

// ShortTag is the BLK-text type suffix for each scalar kind, as used after
// the colon in "name:tag = value".
func (k ScalarKind) ShortTag() string {
	switch k {
	case KindStr:
		return "t"
	case KindInt:
		return "i"
	case KindFloat:
		return "r"
	case KindFloat2:
		return "p2"
	case KindFloat3:
		return "p3"
	case KindFloat4:
		return "p4"
	case KindInt2:
		return "ip2"
	case KindInt3:
		return "ip3"
	case KindBool:
		return "b"
	case KindColor:
		return "c"
	case KindFloat12:
		return "m"
	case KindLong:
		return "i64"
	default:
		return "?"
	}
}

// Color holds the four raw component bytes in on-disk order (as read),
// independent of any emitter's reordering for display.
type Color struct {
	R, G, B, A byte
}

// Scalar is the tagged union of the twelve BLK primitive variants. Exactly
// one field is meaningful, selected by Kind.
type Scalar struct {
	Kind ScalarKind

	Str    string
	Int    int32
	Float  float32
	Float2 [2]float32
	Float3 [3]float32
	Float4 [4]float32
	Int2   [2]int32
	Int3   [3]int32
	Bool   bool
	Color  Color
	// Float12 is stored row-major, four rows of three columns, per spec
	// section 9's resolution of the row-grouping ambiguity.
	Float12 [4][3]float32
	Long    int64
}

// NodeKind discriminates the three Field shapes.
type NodeKind int

const (
	NodeValue NodeKind = iota
	NodeStruct
	NodeMerged
)

// Field is the BLK tree's sum type: a Value leaf, a Struct with ordered
// children, or (post-processing only) a Merged group of same-named
// siblings.
type Field struct {
	Kind NodeKind
	Name string

	Value    Scalar   // valid when Kind == NodeValue
	Children []*Field // valid when Kind == NodeStruct or NodeMerged
}

// NewRoot creates the synthetic root struct every BLK tree starts from.
func NewRoot() *Field {
	return &Field{Kind: NodeStruct, Name: "root"}
}

// NewValue creates a Value leaf.
func NewValue(name string, v Scalar) *Field {
	return &Field{Kind: NodeValue, Name: name, Value: v}
}

// NewStruct creates an empty Struct field.
func NewStruct(name string) *Field {
	return &Field{Kind: NodeStruct, Name: name}
}

// Insert appends child to f's children. Only Struct nodes may receive
// inserts; inserting into a Value or Merged node is an error.
func (f *Field) Insert(child *Field) error {
	if f.Kind != NodeStruct {
		return blkerr.ErrInsertingIntoNonStruct
	}
	f.Children = append(f.Children, child)
	return nil
}

// IsOverride reports whether a field's name carries the "override:" prefix.
func IsOverride(name string) (target string, ok bool) {
	const prefix = "override:"
	if strings.HasPrefix(name, prefix) {
		return name[len(prefix):], true
	}
	return "", false
}
