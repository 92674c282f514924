// Package plaintext implements a line-oriented debugging codec. Segment
// files are readable text: one record per line, nesting expressed by
// leading tabs, values as quoted Go literals. The format trades every
// ounce of performance for inspectability, which makes it the reference
// implementation for the codec contract and a blunt instrument for
// debugging index corruption.
//
// A segment consists of two files. The .dcs file holds the per-document
// data as DOC records containing DOCFIELD, COLVAL, and VECTOR/VPOST
// records. The .trm file holds the inverted index as TERMFIELD records
// containing BTEXT blocks with their POST and TERMINFO records, plus
// SPELL records for the field's spelling words.
package plaintext

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/quiversearch/quiver/codec"
	"github.com/quiversearch/quiver/errs"
	"github.com/quiversearch/quiver/internal/pool"
	"github.com/quiversearch/quiver/storage"
)

const (
	Name      = "plaintext"
	ShortName = "pltx"

	docsExt  = ".dcs"
	termsExt = ".trm"
	docsName = "docs"
	trmName  = "terms"

	compoundExt  = ".cfs"
	compoundName = "compound"
)

func init() {
	codec.Register(Name, func() codec.Codec { return Codec{} })
}

// Codec is stateless; every role reads or writes the segment's two text
// files through the storage layer.
type Codec struct{}

var _ codec.Codec = Codec{}

func (Codec) Name() string {
	return Name
}

func (Codec) ShortName() string {
	return ShortName
}

func (Codec) NewSegment(_ storage.Storage, indexName string) (codec.Segment, error) {
	return codec.NewBaseSegment(indexName, Name, ShortName), nil
}

func (Codec) SegmentFromBytes(data []byte) (codec.Segment, error) {
	return codec.BaseSegmentFromBytes(data)
}

func (c Codec) PerDocumentWriter(st storage.Storage, seg codec.Segment) (codec.PerDocumentWriter, error) {
	out, err := st.CreateFile(seg.FileName(docsName, docsExt))
	if err != nil {
		return nil, err
	}

	return &docWriter{out: out, lastDoc: -1}, nil
}

func (c Codec) FieldWriter(st storage.Storage, seg codec.Segment) (codec.FieldWriter, error) {
	out, err := st.CreateFile(seg.FileName(trmName, termsExt))
	if err != nil {
		return nil, err
	}

	return &fieldWriter{out: out}, nil
}

func (c Codec) PerDocumentReader(st storage.Storage, seg codec.Segment) (codec.PerDocumentReader, error) {
	lines, err := c.readSegmentLines(st, seg, seg.FileName(docsName, docsExt))
	if err != nil {
		return nil, err
	}
	r := &docReader{seg: seg}
	if err := r.parse(lines); err != nil {
		return nil, err
	}

	return r, nil
}

func (c Codec) TermsReader(st storage.Storage, seg codec.Segment) (codec.TermsReader, error) {
	lines, err := c.readSegmentLines(st, seg, seg.FileName(trmName, termsExt))
	if err != nil {
		return nil, err
	}
	r := &termsReader{}
	if err := r.parse(lines); err != nil {
		return nil, err
	}

	return r, nil
}

func (c Codec) Automata(st storage.Storage, seg codec.Segment) codec.Automata {
	return codec.NewCursorAutomata(c, st, seg)
}

// FinishSegment packs the segment's text files into a single compound
// file and deletes the originals. A segment with no files is left alone.
func (c Codec) FinishSegment(st storage.Storage, seg codec.Segment) error {
	names, err := codec.SegmentFileNames(st, seg)
	if err != nil {
		return err
	}
	packable := make([]string, 0, len(names))
	for _, name := range names {
		if !strings.HasSuffix(name, compoundExt) {
			packable = append(packable, name)
		}
	}
	if len(packable) == 0 {
		return nil
	}

	cw, err := storage.NewCompoundWriter(st)
	if err != nil {
		return err
	}
	cw.SetOption("codec", Name)
	staging := pool.GetFileBuffer()
	defer pool.PutFileBuffer(staging)
	for _, name := range packable {
		in, err := st.OpenFile(name)
		if err != nil {
			return err
		}
		data, err := in.ReadAllInto(staging)
		if err != nil {
			in.Close() //nolint:errcheck

			return err
		}
		if err := in.Close(); err != nil {
			return err
		}
		out, err := cw.CreateFile(name)
		if err != nil {
			return err
		}
		if err := out.WriteBytes(data); err != nil {
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
	}
	if err := cw.Save(seg.FileName(compoundName, compoundExt)); err != nil {
		return err
	}
	for _, name := range packable {
		if err := st.DeleteFile(name); err != nil {
			return err
		}
	}

	return nil
}

// SegmentStorage returns a view into the segment's compound file when
// one exists, otherwise st unchanged.
func (c Codec) SegmentStorage(st storage.Storage, seg codec.Segment) (storage.Storage, error) {
	name := seg.FileName(compoundName, compoundExt)
	if !st.FileExists(name) {
		return st, nil
	}

	return storage.OpenCompound(st, name)
}

// readSegmentLines resolves the segment's storage before reading, so
// finished segments are read out of their compound file transparently.
func (c Codec) readSegmentLines(st storage.Storage, seg codec.Segment, name string) ([]line, error) {
	rst, err := c.SegmentStorage(st, seg)
	if err != nil {
		return nil, err
	}
	if cs, ok := rst.(*storage.CompoundStorage); ok {
		defer cs.Close() //nolint:errcheck
	}

	return readLines(rst, name)
}

// A record line is: N tabs of indent, the command word, then tab
// separated key=value pairs. Strings are Go quoted literals so tabs and
// newlines inside values cannot break the framing.
type line struct {
	indent  int
	command string
	args    map[string]string
}

func formatLine(indent int, command string, kv ...any) string {
	var sb strings.Builder
	sb.WriteString(strings.Repeat("\t", indent))
	sb.WriteString(command)
	for i := 0; i+1 < len(kv); i += 2 {
		sb.WriteByte('\t')
		sb.WriteString(kv[i].(string))
		sb.WriteByte('=')
		switch v := kv[i+1].(type) {
		case string:
			sb.WriteString(strconv.Quote(v))
		case []byte:
			sb.WriteString(strconv.Quote(string(v)))
		case int:
			sb.WriteString(strconv.Itoa(v))
		case int64:
			sb.WriteString(strconv.FormatInt(v, 10))
		case float64:
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		case bool:
			sb.WriteString(strconv.FormatBool(v))
		default:
			sb.WriteString(strconv.Quote(fmt.Sprint(v)))
		}
	}
	sb.WriteByte('\n')

	return sb.String()
}

func parseLine(raw string) (line, error) {
	indent := 0
	for indent < len(raw) && raw[indent] == '\t' {
		indent++
	}
	parts := strings.Split(raw[indent:], "\t")
	if parts[0] == "" {
		return line{}, fmt.Errorf("%w: blank record line", errs.ErrCorrupt)
	}
	ln := line{indent: indent, command: parts[0], args: make(map[string]string, len(parts)-1)}
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return line{}, fmt.Errorf("%w: malformed pair %q in %s record", errs.ErrCorrupt, part, ln.command)
		}
		ln.args[key] = value
	}

	return ln, nil
}

func (ln line) str(key string) (string, error) {
	raw, ok := ln.args[key]
	if !ok {
		return "", fmt.Errorf("%w: %s record lacks %q", errs.ErrCorrupt, ln.command, key)
	}
	s, err := strconv.Unquote(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s record %s=%s: %w", errs.ErrCorrupt, ln.command, key, raw, err)
	}

	return s, nil
}

func (ln line) num(key string) (int, error) {
	raw, ok := ln.args[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s record lacks %q", errs.ErrCorrupt, ln.command, key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s record %s=%s: %w", errs.ErrCorrupt, ln.command, key, raw, err)
	}

	return v, nil
}

func (ln line) float(key string) (float64, error) {
	raw, ok := ln.args[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s record lacks %q", errs.ErrCorrupt, ln.command, key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s record %s=%s: %w", errs.ErrCorrupt, ln.command, key, raw, err)
	}

	return v, nil
}

// value round-trips an arbitrary stored value: quoted strings stay
// strings, bare tokens parse as numbers or booleans.
func (ln line) value(key string) (any, error) {
	raw, ok := ln.args[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s record lacks %q", errs.ErrCorrupt, ln.command, key)
	}
	if raw == "" {
		return nil, nil
	}
	if raw[0] == '"' {
		return ln.str(key)
	}
	if raw == "true" || raw == "false" {
		return raw == "true", nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, nil
	}

	return nil, fmt.Errorf("%w: %s record %s=%s", errs.ErrCorrupt, ln.command, key, raw)
}

func readLines(st storage.Storage, name string) ([]line, error) {
	in, err := st.OpenFile(name)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	data, err := in.ReadAll()
	if err != nil {
		return nil, err
	}
	var lines []line
	for _, raw := range strings.Split(string(data), "\n") {
		if raw == "" {
			continue
		}
		ln, err := parseLine(raw)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ln)
	}

	return lines, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
