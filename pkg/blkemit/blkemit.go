// Package blkemit renders a blktree.Field into BLK text and canonical JSON,
// the two textual forms a BLK tree can take after decoding and
// post-processing. See spec sections 4.9 and 9 (color order, Float12 row
// grouping).
package blkemit

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/bgrewell/vromfs-kit/pkg/blktree"
)

// EmitText writes root as indented BLK text: `"name":tag = value` for
// leaves, `"name" {\n...\n}` for structs, tab-per-level indentation, and no
// wrapping braces around the root's own children. A Merged node has no BLK
// text representation and is rejected; emit the pre-merge tree for a
// byte-stable round-trip.
func EmitText(w io.Writer, root *blktree.Field) error {
	bw := bufio.NewWriter(w)
	if err := emitTextField(bw, root, 0, true); err != nil {
		return err
	}
	return bw.Flush()
}

func emitTextField(w *bufio.Writer, f *blktree.Field, indent int, isRoot bool) error {
	switch f.Kind {
	case blktree.NodeValue:
		return emitTextValue(w, f, indent)
	case blktree.NodeMerged:
		return fmt.Errorf("blkemit: merged field %q is not representable in blk text", f.Name)
	case blktree.NodeStruct:
		return emitTextStruct(w, f, indent, isRoot)
	default:
		return fmt.Errorf("blkemit: unknown field kind %d", f.Kind)
	}
}

func emitTextValue(w *bufio.Writer, f *blktree.Field, indent int) error {
	writeIndent(w, indent)
	fmt.Fprintf(w, "\"%s\":%s = %s", f.Name, f.Value.Kind.ShortTag(), formatScalarText(f.Value))
	return nil
}

func emitTextStruct(w *bufio.Writer, f *blktree.Field, indent int, isRoot bool) error {
	if isRoot {
		for i, child := range f.Children {
			if i > 0 {
				w.WriteByte('\n')
			}
			if err := emitTextField(w, child, indent, false); err != nil {
				return err
			}
		}
		return nil
	}

	writeIndent(w, indent)
	fmt.Fprintf(w, "\"%s\" {\n", f.Name)
	for i, child := range f.Children {
		if i > 0 {
			w.WriteByte('\n')
		}
		if err := emitTextField(w, child, indent+1, false); err != nil {
			return err
		}
	}
	w.WriteByte('\n')
	writeIndent(w, indent)
	w.WriteByte('}')
	return nil
}

func writeIndent(w *bufio.Writer, n int) {
	for i := 0; i < n; i++ {
		w.WriteByte('\t')
	}
}

func formatScalarText(v blktree.Scalar) string {
	switch v.Kind {
	case blktree.KindStr:
		return quoteStringValue(v.Str)
	case blktree.KindInt:
		return strconv.FormatInt(int64(v.Int), 10)
	case blktree.KindFloat:
		return formatFloatNatural(float64(v.Float))
	case blktree.KindFloat2:
		return fmt.Sprintf("%s, %s", formatFloatNatural(float64(v.Float2[0])), formatFloatNatural(float64(v.Float2[1])))
	case blktree.KindFloat3:
		return fmt.Sprintf("%s, %s, %s",
			formatFloatNatural(float64(v.Float3[0])), formatFloatNatural(float64(v.Float3[1])), formatFloatNatural(float64(v.Float3[2])))
	case blktree.KindFloat4:
		return fmt.Sprintf("%s, %s, %s, %s",
			formatFloatNatural(float64(v.Float4[0])), formatFloatNatural(float64(v.Float4[1])),
			formatFloatNatural(float64(v.Float4[2])), formatFloatNatural(float64(v.Float4[3])))
	case blktree.KindInt2:
		return fmt.Sprintf("%d, %d", v.Int2[0], v.Int2[1])
	case blktree.KindInt3:
		return fmt.Sprintf("%d, %d, %d", v.Int3[0], v.Int3[1], v.Int3[2])
	case blktree.KindBool:
		return strconv.FormatBool(v.Bool)
	case blktree.KindColor:
		// BGRA, per spec section 9.
		return fmt.Sprintf("%d, %d, %d, %d", v.Color.B, v.Color.G, v.Color.R, v.Color.A)
	case blktree.KindFloat12:
		flat := make([]string, 0, 12)
		for _, row := range v.Float12 {
			for _, c := range row {
				flat = append(flat, formatFloatNatural(float64(c)))
			}
		}
		out := "["
		for i, s := range flat {
			if i > 0 {
				out += ", "
			}
			out += s
		}
		return out + "]"
	case blktree.KindLong:
		return strconv.FormatInt(v.Long, 10)
	default:
		return "?"
	}
}

// quoteStringValue wraps s in double quotes, or single quotes when s itself
// contains a double quote, per the BLK text string-value rule.
func quoteStringValue(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			return "'" + s + "'"
		}
	}
	return "\"" + s + "\""
}

// formatFloatNatural renders v the way a whole-number float loses its
// trailing zero (5 instead of 5.0) while fractional values keep full
// precision, matching the non-JSON textual form.
func formatFloatNatural(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// formatFloatJSON always carries a decimal point, the canonical JSON
// emitter's float form (5 becomes "5.0").
func formatFloatJSON(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s
		}
	}
	return s + ".0"
}

// EmitJSON writes root as canonical JSON: objects for Struct nodes, arrays
// for Merged groups (one layer unwrapped - the group's own name becomes the
// object key, and its members become the array elements), RGBA color order,
// and Float12 as four nested 3-element arrays, one per row. The writer is
// never buffered as a whole; output streams directly to w.
func EmitJSON(w io.Writer, root *blktree.Field) error {
	if root.Kind != blktree.NodeStruct {
		return fmt.Errorf("blkemit: json root must be a struct, got kind %d", root.Kind)
	}
	bw := bufio.NewWriter(w)
	if err := emitJSONObject(bw, root.Children); err != nil {
		return err
	}
	return bw.Flush()
}

func emitJSONObject(w *bufio.Writer, children []*blktree.Field) error {
	w.WriteByte('{')
	for i, child := range children {
		if i > 0 {
			w.WriteByte(',')
		}
		fmt.Fprintf(w, "%q:", child.Name)
		if err := emitJSONValue(w, child); err != nil {
			return err
		}
	}
	w.WriteByte('}')
	return nil
}

func emitJSONValue(w *bufio.Writer, f *blktree.Field) error {
	switch f.Kind {
	case blktree.NodeValue:
		return emitJSONScalar(w, f.Value)
	case blktree.NodeStruct:
		return emitJSONObject(w, f.Children)
	case blktree.NodeMerged:
		w.WriteByte('[')
		for i, child := range f.Children {
			if i > 0 {
				w.WriteByte(',')
			}
			if err := emitJSONValue(w, child); err != nil {
				return err
			}
		}
		w.WriteByte(']')
		return nil
	default:
		return fmt.Errorf("blkemit: unknown field kind %d", f.Kind)
	}
}

func emitJSONScalar(w *bufio.Writer, v blktree.Scalar) error {
	switch v.Kind {
	case blktree.KindStr:
		fmt.Fprintf(w, "%q", v.Str)
	case blktree.KindInt:
		fmt.Fprintf(w, "%d", v.Int)
	case blktree.KindFloat:
		w.WriteString(formatFloatJSON(float64(v.Float)))
	case blktree.KindFloat2:
		writeJSONFloatArray(w, float64(v.Float2[0]), float64(v.Float2[1]))
	case blktree.KindFloat3:
		writeJSONFloatArray(w, float64(v.Float3[0]), float64(v.Float3[1]), float64(v.Float3[2]))
	case blktree.KindFloat4:
		writeJSONFloatArray(w, float64(v.Float4[0]), float64(v.Float4[1]), float64(v.Float4[2]), float64(v.Float4[3]))
	case blktree.KindInt2:
		fmt.Fprintf(w, "[%d,%d]", v.Int2[0], v.Int2[1])
	case blktree.KindInt3:
		fmt.Fprintf(w, "[%d,%d,%d]", v.Int3[0], v.Int3[1], v.Int3[2])
	case blktree.KindBool:
		fmt.Fprintf(w, "%t", v.Bool)
	case blktree.KindColor:
		fmt.Fprintf(w, "[%d,%d,%d,%d]", v.Color.R, v.Color.G, v.Color.B, v.Color.A)
	case blktree.KindFloat12:
		w.WriteByte('[')
		for i, row := range v.Float12 {
			if i > 0 {
				w.WriteByte(',')
			}
			writeJSONFloatArray(w, float64(row[0]), float64(row[1]), float64(row[2]))
		}
		w.WriteByte(']')
	case blktree.KindLong:
		fmt.Fprintf(w, "%d", v.Long)
	default:
		return fmt.Errorf("blkemit: unknown scalar kind %d", v.Kind)
	}
	return nil
}

func writeJSONFloatArray(w *bufio.Writer, vals ...float64) {
	w.WriteByte('[')
	for i, v := range vals {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteString(formatFloatJSON(v))
	}
	w.WriteByte(']')
}
