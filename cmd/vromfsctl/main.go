// Command vromfsctl is a thin CLI around pkg/unpacker: it decodes a VROMFS
// archive and unpacks, lists, or inspects the inner files it carries.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/bgrewell/usage"
	"github.com/bgrewell/vromfs-kit/pkg/dxpgrp"
	"github.com/bgrewell/vromfs-kit/pkg/filter"
	"github.com/bgrewell/vromfs-kit/pkg/unpacker"
	"github.com/theckman/yacspin"
	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: vromfsctl <unpack-all|unpack-one|list|versions|dxpgrp> [options] <archive>")
		os.Exit(1)
	}

	command := os.Args[1]
	os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

	var err error
	switch command {
	case "unpack-all":
		err = runUnpackAll()
	case "unpack-one":
		err = runUnpackOne()
	case "list":
		err = runList()
	case "versions":
		err = runVersions()
	case "dxpgrp":
		err = runDxpGrp()
	default:
		fmt.Fprintf(os.Stderr, "vromfsctl: unknown command %q\n", command)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "vromfsctl: %v\n", err)
		os.Exit(1)
	}
}

func newCLI(name, description string) *usage.Usage {
	return usage.NewUsage(
		usage.WithApplicationName(name),
		usage.WithApplicationDescription(description),
	)
}

func renderFormat(s string) (unpacker.RenderFormat, error) {
	switch strings.ToLower(s) {
	case "", "raw", "none":
		return unpacker.RenderNone, nil
	case "json":
		return unpacker.RenderJSON, nil
	case "blk", "blktext":
		return unpacker.RenderBlkText, nil
	case "blkcompact":
		return unpacker.RenderBlkCompact, nil
	default:
		return unpacker.RenderNone, fmt.Errorf("unrecognized render format %q", s)
	}
}

func buildFilter(prefix string, strip bool, pattern string) (filter.Filter, error) {
	switch {
	case pattern != "":
		return filter.NewRegex(pattern)
	case prefix != "":
		return filter.Prefix{Path: prefix, Strip: strip}, nil
	default:
		return filter.All{}, nil
	}
}

// openArchive reads path and constructs an Unpacker, printing any
// recoverable per-file digest warnings surfaced during inner decode.
func openArchive(path string, validate bool) (*unpacker.Unpacker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}

	pack, err := unpacker.Construct(data, unpacker.WithValidate(validate))
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", path, err)
	}
	for _, w := range pack.Warnings() {
		fmt.Fprintf(os.Stderr, "vromfsctl: warning: %v\n", w)
	}
	return pack, nil
}

func runUnpackAll() error {
	u := newCLI("vromfsctl unpack-all", "Decode a VROMFS archive and write every inner file to an output directory, rendering BLK files as JSON or BLK text along the way.")
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "", nil)
	outDir := u.AddStringOption("o", "out", "./unpacked", "Output directory", "", nil)
	format := u.AddStringOption("f", "format", "raw", "Render format for BLK files: raw, json, blk", "", nil)
	overrides := u.AddBooleanOption("", "overrides", false, "Apply override: fields before rendering", "", nil)
	validate := u.AddBooleanOption("", "validate", true, "Verify outer MD5 and per-file SHA-1 digests", "", nil)
	parallel := u.AddBooleanOption("", "parallel", false, "Render files using a worker pool", "", nil)
	zipOut := u.AddStringOption("z", "zip", "", "Write results into a zip archive at this path instead of a directory", "", nil)
	deflate := u.AddBooleanOption("", "deflate", false, "Use deflate compression in the zip archive", "", nil)
	archivePath := u.AddArgument(1, "archive", "Path to the VROMFS archive", "")
	if !u.Parse() {
		u.PrintError(fmt.Errorf("failed to parse arguments"))
		os.Exit(1)
	}
	if *help {
		u.PrintUsage()
		return nil
	}
	if archivePath == nil || *archivePath == "" {
		return fmt.Errorf("archive path is required")
	}

	rf, err := renderFormat(*format)
	if err != nil {
		return err
	}

	pack, err := openArchive(*archivePath, *validate)
	if err != nil {
		return err
	}

	spinner, spinErr := yacspin.New(yacspin.Config{
		Frequency:       100_000_000,
		CharSet:         yacspin.CharSets[9],
		Suffix:          " unpacking",
		SuffixAutoColon: true,
		Message:         "rendering files",
		StopCharacter:   "✓",
		StopColors:      []string{"fgGreen"},
	})
	if spinErr == nil {
		_ = spinner.Start()
	}

	opts := unpacker.UnpackAllOptions{
		Format:         rf,
		ApplyOverrides: *overrides,
		Parallel:       *parallel,
	}
	entries, err := pack.UnpackAll(opts)
	if spinErr == nil {
		_ = spinner.Stop()
	}
	if err != nil {
		return err
	}

	if *zipOut != "" {
		out, err := os.Create(*zipOut)
		if err != nil {
			return err
		}
		defer out.Close()
		return pack.UnpackAllToZip(out, opts, unpacker.ZipOptions{Deflate: *deflate})
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		full := *outDir + string(os.PathSeparator) + strings.TrimPrefix(e.Path, "/")
		if idx := strings.LastIndexByte(full, os.PathSeparator); idx >= 0 {
			if err := os.MkdirAll(full[:idx], 0o755); err != nil {
				return err
			}
		}
		if err := os.WriteFile(full, e.Data, 0o644); err != nil {
			return err
		}
	}
	fmt.Printf("unpacked %d files to %s\n", len(entries), *outDir)
	return nil
}

func runUnpackOne() error {
	u := newCLI("vromfsctl unpack-one", "Decode a VROMFS archive and print a single inner file by path.")
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "", nil)
	format := u.AddStringOption("f", "format", "raw", "Render format for BLK files: raw, json, blk", "", nil)
	overrides := u.AddBooleanOption("", "overrides", false, "Apply override: fields before rendering", "", nil)
	archivePath := u.AddArgument(1, "archive", "Path to the VROMFS archive", "")
	innerPath := u.AddArgument(2, "path", "Inner path to extract", "")
	if !u.Parse() {
		u.PrintError(fmt.Errorf("failed to parse arguments"))
		os.Exit(1)
	}
	if *help {
		u.PrintUsage()
		return nil
	}
	if archivePath == nil || *archivePath == "" || innerPath == nil || *innerPath == "" {
		return fmt.Errorf("archive and path arguments are required")
	}

	rf, err := renderFormat(*format)
	if err != nil {
		return err
	}

	pack, err := openArchive(*archivePath, true)
	if err != nil {
		return err
	}

	entry, err := pack.UnpackOne(*innerPath, rf, *overrides)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(entry.Data)
	return err
}

func runList() error {
	u := newCLI("vromfsctl list", "List the inner files carried by a VROMFS archive.")
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "", nil)
	prefix := u.AddStringOption("p", "prefix", "", "Only list paths under this folder prefix", "", nil)
	strip := u.AddBooleanOption("", "strip", false, "Strip the prefix from listed paths", "", nil)
	pattern := u.AddStringOption("r", "regex", "", "Only list paths matching this regular expression", "", nil)
	archivePath := u.AddArgument(1, "archive", "Path to the VROMFS archive", "")
	if !u.Parse() {
		u.PrintError(fmt.Errorf("failed to parse arguments"))
		os.Exit(1)
	}
	if *help {
		u.PrintUsage()
		return nil
	}
	if archivePath == nil || *archivePath == "" {
		return fmt.Errorf("archive path is required")
	}

	f, err := buildFilter(*prefix, *strip, *pattern)
	if err != nil {
		return err
	}

	pack, err := openArchive(*archivePath, false)
	if err != nil {
		return err
	}

	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}

	for _, p := range pack.ListFiles(f) {
		if len(p) > width {
			p = p[:width-3] + "..."
		}
		fmt.Println(p)
	}
	return nil
}

func runVersions() error {
	u := newCLI("vromfsctl versions", "Report the container metadata version merged with the archive's own version file.")
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "", nil)
	archivePath := u.AddArgument(1, "archive", "Path to the VROMFS archive", "")
	if !u.Parse() {
		u.PrintError(fmt.Errorf("failed to parse arguments"))
		os.Exit(1)
	}
	if *help {
		u.PrintUsage()
		return nil
	}
	if archivePath == nil || *archivePath == "" {
		return fmt.Errorf("archive path is required")
	}

	pack, err := openArchive(*archivePath, false)
	if err != nil {
		return err
	}

	versions, err := pack.QueryVersions()
	if err != nil {
		return err
	}
	for _, v := range versions {
		fmt.Println(v)
	}
	return nil
}

func runDxpGrp() error {
	u := newCLI("vromfsctl dxpgrp", "Enumerate names from a sibling DXP or GRP blob.")
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "", nil)
	kind := u.AddStringOption("k", "kind", "dxp", "Blob kind: dxp or grp", "", nil)
	path := u.AddArgument(1, "file", "Path to the DXP or GRP blob", "")
	if !u.Parse() {
		u.PrintError(fmt.Errorf("failed to parse arguments"))
		os.Exit(1)
	}
	if *help {
		u.PrintUsage()
		return nil
	}
	if path == nil || *path == "" {
		return fmt.Errorf("file path is required")
	}

	data, err := os.ReadFile(*path)
	if err != nil {
		return err
	}

	var names []string
	switch strings.ToLower(*kind) {
	case "dxp":
		names, err = dxpgrp.ParseDXP(data)
	case "grp":
		names, err = dxpgrp.ParseGRP(data)
	default:
		return fmt.Errorf("unrecognized kind %q", *kind)
	}
	if err != nil {
		return err
	}
	for _, n := range names {
		fmt.Println(n)
	}
	return nil
}
