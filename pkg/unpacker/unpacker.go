// Package unpacker is the composition root: it decodes a VROMFS archive,
// locates its shared name map and decoder dictionary, and exposes the
// operations a caller actually wants (unpack all, unpack one, list files,
// query versions) on top of pkg/vromfs, pkg/innerfs, pkg/blk, pkg/blktree
// and pkg/blkemit. See spec section 4.10.
package unpacker

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/bgrewell/vromfs-kit/pkg/blk"
	"github.com/bgrewell/vromfs-kit/pkg/blkemit"
	"github.com/bgrewell/vromfs-kit/pkg/blktree"
	"github.com/bgrewell/vromfs-kit/pkg/filter"
	"github.com/bgrewell/vromfs-kit/pkg/innerfs"
	"github.com/bgrewell/vromfs-kit/pkg/logging"
	"github.com/bgrewell/vromfs-kit/pkg/nm"
	"github.com/bgrewell/vromfs-kit/pkg/vromfs"
	"github.com/bgrewell/vromfs-kit/pkg/zstdec"
	"github.com/go-logr/logr"
)

// RenderFormat selects how a BLK-looking file is rendered during unpack.
// RenderNone copies every file through unrendered.
type RenderFormat int

const (
	RenderNone RenderFormat = iota
	RenderJSON
	RenderBlkText
	RenderBlkCompact
)

// Entry is a single unpacked (path, bytes) pair, after filtering and
// optional rendering.
type Entry struct {
	Path string
	Data []byte
}

// Unpacker holds a decoded VROMFS archive's inner entries plus whatever
// shared resources (name map, decoder dictionary) it carries internally.
type Unpacker struct {
	entries  []innerfs.Entry
	meta     vromfs.Metadata
	nameMap  *nm.NameMap
	dict     *zstdec.Dictionary
	warnings []error

	dumpParsedNameMap bool
	log               *logging.Logger
}

// Options configures Construct.
type Options struct {
	logger            logr.Logger
	validate          bool
	dumpParsedNameMap bool
}

// Option mutates Options.
type Option func(*Options)

// WithLogger attaches a logger.
func WithLogger(logger logr.Logger) Option {
	return func(o *Options) { o.logger = logger }
}

// WithValidate enables the outer MD5 check and per-file SHA-1 verification.
func WithValidate(validate bool) Option {
	return func(o *Options) { o.validate = validate }
}

// WithDumpParsedNameMap retains the parsed shared name map's entries for
// inspection via ParsedNameMap, mainly useful for debugging a SLIM archive.
func WithDumpParsedNameMap(dump bool) Option {
	return func(o *Options) { o.dumpParsedNameMap = dump }
}

func newOptions(opts []Option) Options {
	o := Options{logger: logr.Discard(), validate: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Construct decodes raw VROMFS bytes, then locates the internal "nm" entry
// (parsed into a shared name map) and any internal "*.dict" entry (wrapped
// into a shared decoder dictionary), per spec section 4.10.
func Construct(data []byte, opts ...Option) (*Unpacker, error) {
	o := newOptions(opts)
	log := logging.NewLogger(o.logger)

	plain, meta, err := vromfs.Decode(data, vromfs.WithLogger(o.logger), vromfs.WithVerifyDigest(o.validate))
	if err != nil {
		return nil, fmt.Errorf("unpacker: decode outer container: %w", err)
	}

	img, err := innerfs.Decode(plain, innerfs.WithLogger(o.logger), innerfs.WithValidate(o.validate))
	if err != nil {
		return nil, fmt.Errorf("unpacker: decode inner container: %w", err)
	}

	u := &Unpacker{
		entries:           img.Entries,
		meta:              meta,
		warnings:          img.Warnings(),
		dumpParsedNameMap: o.dumpParsedNameMap,
		log:               log,
	}

	for _, e := range img.Entries {
		switch {
		case e.Path == "nm":
			m, err := nm.FromFile(e.Data)
			if err != nil {
				return nil, fmt.Errorf("unpacker: parse name map: %w", err)
			}
			u.nameMap = m
		case strings.HasSuffix(e.Path, ".dict"):
			d, err := zstdec.NewDictionary(e.Data)
			if err != nil {
				return nil, fmt.Errorf("unpacker: parse decoder dictionary %q: %w", e.Path, err)
			}
			u.dict = d
		}
	}

	log.Trace("constructed unpacker", "files", len(img.Entries), "hasNameMap", u.nameMap != nil, "hasDict", u.dict != nil)
	return u, nil
}

// Warnings returns non-fatal per-file digest mismatches surfaced while
// decoding the inner container.
func (u *Unpacker) Warnings() []error { return u.warnings }

// ParsedNameMap returns the shared name map's entries in index order, or
// nil if the archive carried none or WithDumpParsedNameMap was not set.
func (u *Unpacker) ParsedNameMap() []string {
	if !u.dumpParsedNameMap || u.nameMap == nil {
		return nil
	}
	names := u.nameMap.Names()
	out := make([]string, len(names))
	for i, h := range names {
		out[i] = string(h)
	}
	return out
}

// looksLikeBlk reports whether path and data pass the façade's cheap BLK
// sniff: a ".blk" extension and a recognized leading kind byte.
func looksLikeBlk(path string, data []byte) bool {
	if !strings.HasSuffix(path, ".blk") || len(data) == 0 {
		return false
	}
	switch blk.Kind(data[0]) {
	case blk.KindBBF, blk.KindFAT, blk.KindFATZstd, blk.KindSlim, blk.KindSlimZstd, blk.KindSlimZstdDict:
		return true
	default:
		return false
	}
}

func (u *Unpacker) render(data []byte, format RenderFormat, applyOverrides bool) ([]byte, error) {
	root, err := blk.Decode(data, blk.WithNameMap(u.nameMap), blk.WithDictionary(u.dict))
	if err != nil {
		return nil, err
	}
	// Duplicate merging is for JSON only: BLK text repeats keys and cannot
	// represent a Merged node.
	merged := format == RenderJSON
	if merged {
		root = blktree.Merge(root)
	}
	if applyOverrides {
		root = blktree.ApplyOverrides(root, merged)
	}

	var buf bytes.Buffer
	switch format {
	case RenderJSON:
		if err := blkemit.EmitJSON(&buf, root); err != nil {
			return nil, err
		}
	case RenderBlkText, RenderBlkCompact:
		if err := blkemit.EmitText(&buf, root); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unpacker: unknown render format %d", format)
	}
	return buf.Bytes(), nil
}

// UnpackAllOptions configures UnpackAll and UnpackAllToZip.
type UnpackAllOptions struct {
	Format         RenderFormat
	ApplyOverrides bool
	Filter         filter.Filter
	Parallel       bool
}

func (o UnpackAllOptions) filter() filter.Filter {
	if o.Filter == nil {
		return filter.All{}
	}
	return o.Filter
}

// UnpackAll renders every filtered entry according to opts, preserving
// on-disk order. A file is rendered only if it looks like BLK; everything
// else (including an entry a BLK sniff rejects) copies through unchanged.
func (u *Unpacker) UnpackAll(opts UnpackAllOptions) ([]Entry, error) {
	f := opts.filter()

	type slot struct {
		emitPath string
		data     []byte
		include  bool
	}
	slots := make([]slot, len(u.entries))
	for i, e := range u.entries {
		emitPath, ok := f.Accept(e.Path)
		slots[i] = slot{emitPath: emitPath, include: ok}
	}

	renderSlot := func(i int) error {
		s := &slots[i]
		if !s.include {
			return nil
		}
		e := u.entries[i]
		if opts.Format != RenderNone && looksLikeBlk(e.Path, e.Data) {
			rendered, err := u.render(e.Data, opts.Format, opts.ApplyOverrides)
			if err != nil {
				return fmt.Errorf("unpacker: render %q: %w", e.Path, err)
			}
			s.data = rendered
			return nil
		}
		s.data = e.Data
		return nil
	}

	if opts.Parallel {
		if err := parallelEach(len(u.entries), renderSlot); err != nil {
			return nil, err
		}
	} else {
		for i := range u.entries {
			if err := renderSlot(i); err != nil {
				return nil, err
			}
		}
	}

	out := make([]Entry, 0, len(u.entries))
	for _, s := range slots {
		if s.include {
			out = append(out, Entry{Path: s.emitPath, Data: s.data})
		}
	}
	return out, nil
}

// parallelEach runs fn(i) for i in [0, n) across a bounded worker pool,
// returning the first error encountered. Each worker owns a distinct index,
// so result slots never race.
func parallelEach(n int, fn func(i int) error) error {
	const maxWorkers = 8
	var (
		wg    sync.WaitGroup
		sem   = make(chan struct{}, maxWorkers)
		errCh = make(chan error, 1)
	)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := fn(idx); err != nil {
				select {
				case errCh <- err:
				default:
				}
			}
		}(i)
	}
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// ZipOptions configures UnpackAllToZip.
type ZipOptions struct {
	// Deflate selects deflate compression; otherwise entries are stored.
	Deflate bool
	// Level is the deflate compression level, meaningful only when Deflate
	// is set. Zero uses flate.DefaultCompression.
	Level int
}

// UnpackAllToZip renders every filtered entry as UnpackAll would, then
// writes the results into a zip archive on w.
func (u *Unpacker) UnpackAllToZip(w io.Writer, unpackOpts UnpackAllOptions, zipOpts ZipOptions) error {
	entries, err := u.UnpackAll(unpackOpts)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	method := zip.Store
	if zipOpts.Deflate {
		method = zip.Deflate
		level := zipOpts.Level
		if level == 0 {
			level = flate.DefaultCompression
		}
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})
	}

	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Path, Method: method}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("unpacker: zip header for %q: %w", e.Path, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			return fmt.Errorf("unpacker: zip write for %q: %w", e.Path, err)
		}
	}

	return zw.Close()
}

// UnpackOne renders the single entry at path, matched against each entry's
// original on-disk path (before any filter renaming).
func (u *Unpacker) UnpackOne(path string, format RenderFormat, applyOverrides bool) (Entry, error) {
	for _, e := range u.entries {
		if e.Path != path {
			continue
		}
		if format != RenderNone && looksLikeBlk(e.Path, e.Data) {
			rendered, err := u.render(e.Data, format, applyOverrides)
			if err != nil {
				return Entry{}, fmt.Errorf("unpacker: render %q: %w", path, err)
			}
			return Entry{Path: path, Data: rendered}, nil
		}
		return Entry{Path: path, Data: e.Data}, nil
	}
	return Entry{}, fmt.Errorf("unpacker: file %q not found", path)
}

// ListFiles returns every filtered entry's emitted path, in on-disk order.
func (u *Unpacker) ListFiles(f filter.Filter) []string {
	if f == nil {
		f = filter.All{}
	}
	out := make([]string, 0, len(u.entries))
	for _, e := range u.entries {
		if emitPath, ok := f.Accept(e.Path); ok {
			out = append(out, emitPath)
		}
	}
	return out
}

// QueryVersions merges the container metadata version with the contents of
// a file named "version" (plaintext "a.b.c.d"), returning a sorted vector.
func (u *Unpacker) QueryVersions() ([]string, error) {
	var versions []string
	if u.meta.HasVersion {
		versions = append(versions, u.meta.VersionString())
	}
	for _, e := range u.entries {
		if e.Path != "version" {
			continue
		}
		v := strings.TrimSpace(string(e.Data))
		if v != "" {
			versions = append(versions, v)
		}
	}
	sort.Strings(versions)
	return versions, nil
}
