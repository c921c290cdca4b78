package blk

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/bgrewell/vromfs-kit/internal/testutil"
	"github.com/bgrewell/vromfs-kit/pkg/blkerr"
	"github.com/bgrewell/vromfs-kit/pkg/blktree"
	"github.com/bgrewell/vromfs-kit/pkg/nm"
	"github.com/bgrewell/vromfs-kit/pkg/uleb"
	"github.com/bgrewell/vromfs-kit/pkg/zstdec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fatParam = testutil.FatParam
type fatBlock = testutil.FatBlock

// buildFatBody assembles a FAT BLK body (without the leading kind byte) from
// a flat block list and the distinct name table, mirroring spec section 4.7
// byte-for-byte.
func buildFatBody(names []string, blocks []fatBlock) []byte {
	return testutil.BuildFatBody(names, blocks)
}

func f32le(v float32) []byte { return testutil.F32LE(v) }

func i32le(v int32) []byte { return testutil.I32LE(v) }

func concatBytes(chunks ...[]byte) []byte { return testutil.Concat(chunks...) }

// strictSampleNames and strictSampleBlocks build the literal "strict sample"
// tree: a root with scalar children plus two nested structs.
func strictSampleNames() []string {
	return []string{
		"vec4f", "int", "long", "str", "bool", "color",
		"float", "vec2i", "vec3f", "vec2f", "transform",
		"alpha", "beta", "gamma",
	}
}

func strictSampleBlocks() []fatBlock {
	transform := concatBytes(
		f32le(1), f32le(0), f32le(0),
		f32le(0), f32le(1), f32le(0),
		f32le(0), f32le(0), f32le(1),
		f32le(1.25), f32le(2.5), f32le(5.0),
	)

	root := fatBlock{
		Name: "",
		Params: []fatParam{
			{Name: "vec4f", Kind: blktree.KindFloat4, OutData: concatBytes(f32le(1.25), f32le(2.5), f32le(5.0), f32le(10.0))},
			{Name: "int", Kind: blktree.KindInt, Inline: 42},
			{Name: "long", Kind: blktree.KindLong, OutData: func() []byte {
				b := make([]byte, 8)
				binary.LittleEndian.PutUint64(b, 64)
				return b
			}()},
		},
		ChildCount: 2,
		FirstChild: 1,
	}

	alpha := fatBlock{
		Name: "alpha",
		Params: []fatParam{
			{Name: "str", Kind: blktree.KindStr, OutData: append([]byte("hello"), 0)},
			{Name: "bool", Kind: blktree.KindBool, Inline: 1},
			{Name: "color", Kind: blktree.KindColor, Inline: uint32(3) | uint32(2)<<8 | uint32(1)<<16 | uint32(4)<<24},
		},
		ChildCount: 1,
		FirstChild: 3,
	}

	beta := fatBlock{
		Name: "beta",
		Params: []fatParam{
			{Name: "float", Kind: blktree.KindFloat, Inline: math.Float32bits(1.25)},
			{Name: "vec2i", Kind: blktree.KindInt2, OutData: concatBytes(i32le(1), i32le(2))},
			{Name: "vec3f", Kind: blktree.KindFloat3, OutData: concatBytes(f32le(1.25), f32le(2.5), f32le(5.0))},
		},
	}

	gamma := fatBlock{
		Name: "gamma",
		Params: []fatParam{
			{Name: "vec2i", Kind: blktree.KindInt2, OutData: concatBytes(i32le(3), i32le(4))},
			{Name: "vec2f", Kind: blktree.KindFloat2, OutData: concatBytes(f32le(1.25), f32le(2.5))},
			{Name: "transform", Kind: blktree.KindFloat12, OutData: transform},
		},
	}

	return []fatBlock{root, alpha, beta, gamma}
}

func findChild(f *blktree.Field, name string) *blktree.Field {
	for _, c := range f.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestDecode_StrictSampleFatTree(t *testing.T) {
	body := buildFatBody(strictSampleNames(), strictSampleBlocks())
	data := append([]byte{byte(KindFAT)}, body...)

	root, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, blktree.NodeStruct, root.Kind)
	require.Len(t, root.Children, 5)

	vec4f := findChild(root, "vec4f")
	require.NotNil(t, vec4f)
	assert.Equal(t, [4]float32{1.25, 2.5, 5.0, 10.0}, vec4f.Value.Float4)

	intField := findChild(root, "int")
	require.NotNil(t, intField)
	assert.Equal(t, int32(42), intField.Value.Int)

	longField := findChild(root, "long")
	require.NotNil(t, longField)
	assert.Equal(t, int64(64), longField.Value.Long)

	alpha := findChild(root, "alpha")
	require.NotNil(t, alpha)
	require.Len(t, alpha.Children, 4)
	assert.Equal(t, "hello", findChild(alpha, "str").Value.Str)
	assert.True(t, findChild(alpha, "bool").Value.Bool)
	assert.Equal(t, blktree.Color{R: 3, G: 2, B: 1, A: 4}, findChild(alpha, "color").Value.Color)

	gamma := findChild(alpha, "gamma")
	require.NotNil(t, gamma)
	assert.Equal(t, [2]int32{3, 4}, findChild(gamma, "vec2i").Value.Int2)
	assert.Equal(t, [2]float32{1.25, 2.5}, findChild(gamma, "vec2f").Value.Float2)
	transformField := findChild(gamma, "transform")
	require.NotNil(t, transformField)
	assert.Equal(t, [4][3]float32{
		{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {1.25, 2.5, 5.0},
	}, transformField.Value.Float12)

	beta := findChild(root, "beta")
	require.NotNil(t, beta)
	assert.Equal(t, float32(1.25), findChild(beta, "float").Value.Float)
	assert.Equal(t, [2]int32{1, 2}, findChild(beta, "vec2i").Value.Int2)
	assert.Equal(t, [3]float32{1.25, 2.5, 5.0}, findChild(beta, "vec3f").Value.Float3)
}

func TestDecode_FatZstdRoundTrip(t *testing.T) {
	body := buildFatBody(strictSampleNames(), strictSampleBlocks())
	fatFile := append([]byte{byte(KindFAT)}, body...)

	compressed, err := zstdec.Encode(fatFile)
	require.NoError(t, err)

	data := append([]byte{byte(KindFATZstd)}, compressed...)

	root, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, root.Children, 5)
	assert.Equal(t, int32(42), findChild(root, "int").Value.Int)
}

func TestDecode_SlimRequiresNameMap(t *testing.T) {
	data := []byte{byte(KindSlim), 0x00}
	_, err := Decode(data)
	assert.Error(t, err)
}

func TestDecode_SlimUsesSharedNameMap(t *testing.T) {
	names := []string{"value"}
	nameMapSection := func() []byte {
		var dataBuf []byte
		for _, n := range names {
			dataBuf = append(dataBuf, n...)
			dataBuf = append(dataBuf, 0)
		}
		out := uleb.Encode(nil, uint64(len(names)))
		out = uleb.Encode(out, uint64(len(dataBuf)))
		return append(out, dataBuf...)
	}()
	nameMap, err := nm.New(nameMapSection)
	require.NoError(t, err)

	var paramsData []byte
	rec := make([]byte, 8)
	// name_id 0 ("value"), type Int, inline 7
	rec[3] = byte(blktree.KindInt)
	binary.LittleEndian.PutUint32(rec[4:], 7)
	paramsInfo := rec

	var blockInfo []byte
	blockInfo = uleb.Encode(blockInfo, 0) // root
	blockInfo = uleb.Encode(blockInfo, 1) // param_count
	blockInfo = uleb.Encode(blockInfo, 0) // child_count

	var body []byte
	body = uleb.Encode(body, 1) // names_count (informational for SLIM)
	body = uleb.Encode(body, 1) // blocks_count
	body = uleb.Encode(body, 1) // params_count
	body = uleb.Encode(body, uint64(len(paramsData)))
	body = append(body, paramsData...)
	body = append(body, paramsInfo...)
	body = append(body, blockInfo...)

	data := append([]byte{byte(KindSlim)}, body...)

	root, err := Decode(data, WithNameMap(nameMap))
	require.NoError(t, err)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "value", root.Children[0].Name)
	assert.Equal(t, int32(7), root.Children[0].Value.Int)
}

func TestDecode_UnrecognizedKindByte(t *testing.T) {
	_, err := Decode([]byte{0xEE})
	assert.Error(t, err)
}

func TestDecode_EmptyBufferIsUnrecognizedHeader(t *testing.T) {
	_, err := Decode(nil)
	assert.Error(t, err)
}

func TestDecode_UnclaimedElementsRejected(t *testing.T) {
	namesData := append([]byte("x"), 0)

	var body []byte
	body = uleb.Encode(body, 1) // names_count
	body = uleb.Encode(body, uint64(len(namesData)))
	body = append(body, namesData...)
	body = uleb.Encode(body, 2) // blocks_count
	body = uleb.Encode(body, 0) // params_count
	body = uleb.Encode(body, 0) // params_data_size
	body = uleb.Encode(body, 0) // block 0: name_id root
	body = uleb.Encode(body, 0) // param_count
	body = uleb.Encode(body, 0) // child_count (no children, never claims block 1)
	body = uleb.Encode(body, 1) // block 1: name_id -> names[0], never referenced as a child
	body = uleb.Encode(body, 0)
	body = uleb.Encode(body, 0)

	data := append([]byte{byte(KindFAT)}, body...)
	_, err := Decode(data)
	assert.ErrorIs(t, err, blkerr.ErrUnclaimedElements)
}
