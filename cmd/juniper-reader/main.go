// Command juniper-reader opens e-books, manages their annotations and serves
// them to a browser-based reading surface.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/klauspost/compress/zlib"

	"github.com/FocuswithJustin/JuniperReader/core/annotation"
	"github.com/FocuswithJustin/JuniperReader/core/book"
	"github.com/FocuswithJustin/JuniperReader/core/cas"
	"github.com/FocuswithJustin/JuniperReader/core/epub"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/mobi"
	"github.com/FocuswithJustin/JuniperReader/core/reader"
	"github.com/FocuswithJustin/JuniperReader/core/sniff"
	"github.com/FocuswithJustin/JuniperReader/internal/archive"
	"github.com/FocuswithJustin/JuniperReader/internal/bridge"
	"github.com/FocuswithJustin/JuniperReader/internal/config"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
	"github.com/FocuswithJustin/JuniperReader/internal/store"
	"github.com/FocuswithJustin/JuniperReader/internal/validation"
)

const version = "0.1.0"

// CLI defines the command-line interface.
type CLI struct {
	config.Config `embed:""`

	Detect      DetectCmd        `cmd:"" help:"Detect the format of a book"`
	TOC         TOCCmd           `cmd:"" name:"toc" help:"Print a book's metadata and table of contents"`
	Annotations AnnotationsGroup `cmd:"" help:"Annotation storage (import, list, export)"`
	Serve       ServeCmd         `cmd:"" help:"Serve uploaded books to a browser surface"`
	Sample      SampleCmd        `cmd:"" help:"Write a sample EPUB"`
	Version     VersionCmd       `cmd:"" help:"Print version information"`
}

// AnnotationsGroup contains annotation storage operations.
type AnnotationsGroup struct {
	Import AnnotationsImportCmd `cmd:"" help:"Import annotations for a book from a JSON file"`
	List   AnnotationsListCmd   `cmd:"" help:"List the stored annotations of a book"`
	Export AnnotationsExportCmd `cmd:"" help:"Export the stored annotations of a book as JSON"`
}

// env carries what every command needs besides its own flags.
type env struct {
	cfg *config.Config
	out io.Writer
}

func unzlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func newDispatcher() *reader.Dispatcher {
	return reader.NewDispatcher(reader.DispatchOptions{Unzlib: unzlib})
}

// DetectCmd prints the format of a file.
type DetectCmd struct {
	Path string `arg:"" help:"Book file" type:"existingfile"`
	JSON bool   `help:"Print JSON"`
}

// Detection is the result of detect.
type Detection struct {
	Path        string `json:"path"`
	Format      string `json:"format"`
	Packaging   string `json:"packaging,omitempty"`
	MediaType   string `json:"mediaType,omitempty"`
	Size        int64  `json:"size"`
	Fingerprint string `json:"fingerprint"`
}

func (c *DetectCmd) Run(e *env) error {
	if err := validation.ValidatePath(c.Path); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	f, err := sniff.OpenFile(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	format, packaging, err := classify(f)
	if err != nil {
		return err
	}
	fp, err := book.FingerprintReader(io.NewSectionReader(f, 0, f.Size()))
	if err != nil {
		return fmt.Errorf("fingerprint: %w", err)
	}
	d := Detection{Path: c.Path, Format: format.String(), Packaging: packaging, MediaType: f.MediaType(), Size: f.Size(), Fingerprint: fp}
	if c.JSON {
		return writeJSON(e.out, d)
	}
	fmt.Fprintf(e.out, "%s: %s\n", d.Path, d.Format)
	if d.Packaging != "" {
		fmt.Fprintf(e.out, "  packaging:   %s\n", d.Packaging)
	}
	if d.MediaType != "" {
		fmt.Fprintf(e.out, "  media type:  %s\n", d.MediaType)
	}
	fmt.Fprintf(e.out, "  size:        %d\n", d.Size)
	fmt.Fprintf(e.out, "  fingerprint: %s\n", d.Fingerprint)
	if format == sniff.Unknown {
		return errors.NewUnsupported(c.Path, "no codec claims the file")
	}
	return nil
}

// classify mirrors the dispatcher: compressed tarballs hold an unpacked
// package tree, everything else goes through the sniffer.
func classify(f sniff.File) (sniff.Format, string, error) {
	if f.Size() > 0 {
		prefix, err := sniff.ReadPrefix(f, 6)
		if err != nil {
			return sniff.Unknown, "", err
		}
		if kind, ok := archive.DetectCompression(prefix); ok {
			return sniff.PackageArchive, kind.String(), nil
		}
	}
	format, err := sniff.Classifier{LegacyProbe: mobi.Probe}.Classify(f)
	return format, "", err
}

// TOCCmd prints metadata and the table of contents.
type TOCCmd struct {
	Path string `arg:"" help:"Book file, directory or tarball" type:"existingpath"`
	JSON bool   `help:"Print JSON"`
}

func (c *TOCCmd) Run(e *env) error {
	if err := validation.ValidatePath(c.Path); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	view, err := newDispatcher().OpenPath(context.Background(), c.Path)
	if err != nil {
		return err
	}
	b := view.Book
	if c.JSON {
		return writeJSON(e.out, map[string]any{
			"format":      view.Format.String(),
			"metadata":    b.Metadata(),
			"toc":         b.TOC(),
			"sections":    len(b.Sections()),
			"fixedLayout": b.FixedLayout(),
		})
	}

	md := b.Metadata()
	fmt.Fprintf(e.out, "%s (%s)\n", md.Title, view.Format)
	if len(md.Authors) > 0 {
		fmt.Fprintf(e.out, "by %s\n", strings.Join(md.Authors, ", "))
	}
	fmt.Fprintf(e.out, "%d sections\n\n", len(b.Sections()))
	printTOC(e.out, b.TOC(), 0)
	return nil
}

func printTOC(w io.Writer, items []book.TOCItem, depth int) {
	for _, it := range items {
		fmt.Fprintf(w, "%s%s  %s\n", strings.Repeat("  ", depth), it.Label, it.Href)
		printTOC(w, it.Subitems, depth+1)
	}
}

// fingerprintFile reads a book file and returns its fingerprint.
func fingerprintFile(path string) (string, error) {
	if err := validation.ValidatePath(path); err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return book.FingerprintReader(f)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if err := validation.ValidatePath(cfg.StorePath); err != nil {
		return nil, fmt.Errorf("invalid store path: %w", err)
	}
	return store.Open(context.Background(), cfg.StorePath)
}

// AnnotationsImportCmd stores annotations read from a JSON array.
type AnnotationsImportCmd struct {
	Book string `arg:"" help:"Book file the annotations belong to" type:"existingfile"`
	From string `arg:"" help:"JSON file with an array of annotations" type:"existingfile"`
}

func (c *AnnotationsImportCmd) Run(e *env) error {
	fp, err := fingerprintFile(c.Book)
	if err != nil {
		return err
	}
	if err := validation.ValidatePath(c.From); err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	raw, err := os.ReadFile(c.From)
	if err != nil {
		return err
	}
	var list []annotation.Annotation
	if err := json.Unmarshal(raw, &list); err != nil {
		return fmt.Errorf("parse %s: %w", c.From, err)
	}

	st, err := openStore(e.cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.Import(context.Background(), fp, list)
	fmt.Fprintf(e.out, "imported %d of %d annotations\n", n, len(list))
	if err != nil && !errors.Is(err, errors.ErrMalformedLocation) {
		return err
	}
	if err != nil {
		fmt.Fprintf(e.out, "skipped: %v\n", err)
	}
	return nil
}

// AnnotationsListCmd lists the stored annotations of a book.
type AnnotationsListCmd struct {
	Book string `arg:"" help:"Book file" type:"existingfile"`
}

func (c *AnnotationsListCmd) Run(e *env) error {
	fp, err := fingerprintFile(c.Book)
	if err != nil {
		return err
	}
	st, err := openStore(e.cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.List(context.Background(), fp)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(e.out, "no annotations")
		return nil
	}
	for _, a := range list {
		fmt.Fprintf(e.out, "%4d  %-9s %-8s %s", a.ID, a.Kind, a.Color, a.Value)
		if a.Note != "" {
			fmt.Fprintf(e.out, "  %q", a.Note)
		}
		fmt.Fprintln(e.out)
	}
	if last, ok, err := st.LastLocation(context.Background(), fp); err == nil && ok {
		fmt.Fprintf(e.out, "last position: %s\n", last)
	}
	return nil
}

// AnnotationsExportCmd writes the stored annotations of a book as JSON.
type AnnotationsExportCmd struct {
	Book string `arg:"" help:"Book file" type:"existingfile"`
	Out  string `short:"o" help:"Output file (default stdout)" type:"path"`
}

func (c *AnnotationsExportCmd) Run(e *env) error {
	fp, err := fingerprintFile(c.Book)
	if err != nil {
		return err
	}
	st, err := openStore(e.cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.List(context.Background(), fp)
	if err != nil {
		return err
	}
	if list == nil {
		list = []annotation.Annotation{}
	}
	if c.Out == "" {
		return writeJSON(e.out, list)
	}
	if err := validation.ValidatePath(c.Out); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	var buf bytes.Buffer
	if err := writeJSON(&buf, list); err != nil {
		return err
	}
	return os.WriteFile(c.Out, buf.Bytes(), 0644)
}

// ServeCmd runs the browser bridge.
type ServeCmd struct{}

func (c *ServeCmd) Run(e *env) error {
	cfg := e.cfg
	for _, p := range []string{cfg.UploadDir, cfg.StorePath} {
		if err := validation.ValidatePath(p); err != nil {
			return fmt.Errorf("invalid path %q: %w", p, err)
		}
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	uploads, err := cas.NewStore(cfg.UploadDir)
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, cfg.StorePath)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := bridge.New(bridge.Options{
		Store:          st,
		Uploads:        uploads,
		Unzlib:         unzlib,
		Style:          cfg.ReaderStyle(),
		SelectionWait:  cfg.SelectionWait,
		SessionTTL:     cfg.SessionTTL,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	port := 0
	if _, p, err := net.SplitHostPort(cfg.Addr); err == nil {
		port, _ = strconv.Atoi(p)
	}
	info := store.GetInfo()
	logging.ServerStartup("bridge", "http+ws", port, "addr", cfg.Addr, "store", cfg.StorePath, "driver", info.DriverName, "uploads", cfg.UploadDir)
	return srv.Run(ctx, cfg.Addr)
}

// SampleCmd writes a small EPUB for trying the reader. An output name ending
// in .tar.gz or .tar.xz gets the unpacked package as a tarball instead.
type SampleCmd struct {
	Out      string `arg:"" help:"Output path (.epub, .tar.gz or .tar.xz)" type:"path"`
	Title    string `default:"Sample Book" help:"Book title"`
	Author   string `default:"Juniper Reader" help:"Book author"`
	Chapters int    `default:"3" help:"Number of chapters"`
}

func (c *SampleCmd) Run(e *env) error {
	if err := validation.ValidatePath(c.Out); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	if c.Chapters < 1 {
		return fmt.Errorf("chapters must be at least 1, got %d", c.Chapters)
	}
	b := epub.New().SetTitle(c.Title).AddAuthor(c.Author).SetLanguage("en")
	for i := 1; i <= c.Chapters; i++ {
		b.AddChapter(fmt.Sprintf("Chapter %d", i), sampleChapter(i))
	}
	if isTarball(c.Out) {
		dir, err := os.MkdirTemp("", "juniper-sample-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		if err := b.WriteDir(dir); err != nil {
			return err
		}
		if err := archive.CreateTar(dir, c.Out, ""); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "wrote %s\n", c.Out)
		return nil
	}

	data, err := b.Build()
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.Out, data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "wrote %s (%d bytes, fingerprint %s)\n", c.Out, len(data), book.Fingerprint(data))
	return nil
}

func isTarball(path string) bool {
	for _, ext := range []string{".tar.gz", ".tgz", ".tar.xz", ".txz"} {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func sampleChapter(n int) string {
	var sb strings.Builder
	for p := 1; p <= 4; p++ {
		fmt.Fprintf(&sb, "<p>Chapter %d, paragraph %d. Select some of this text to try highlighting and notes.</p>\n", n, p)
	}
	return sb.String()
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run(e *env) error {
	fmt.Fprintf(e.out, "juniper-reader version %s\n", version)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newParser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	opts := []kong.Option{
		kong.Name("juniper-reader"),
		kong.Description("Juniper Reader - e-book reading core and browser bridge"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	}
	return kong.New(cli, append(opts, options...)...)
}

// run parses args and runs the selected command, writing to out.
func run(args []string, out io.Writer, options ...kong.Option) error {
	var cli CLI
	parser, err := newParser(&cli, options...)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	if err := cli.Config.Validate(); err != nil {
		return err
	}
	cli.Config.InitLogging()
	return kctx.Run(&env{cfg: &cli.Config, out: out})
}

func main() {
	if err := config.LoadEnv(os.Getenv("READER_ENV_FILE")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "juniper-reader:", err)
		os.Exit(1)
	}
}
