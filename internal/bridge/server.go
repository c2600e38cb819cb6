// Package bridge serves uploaded books to browsers. The browser renders the
// book and the reader core runs here, with the two talking over a WebSocket.
package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/JuniperReader/core/book"
	corecache "github.com/FocuswithJustin/JuniperReader/core/cache"
	"github.com/FocuswithJustin/JuniperReader/core/cas"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/reader"
	"github.com/FocuswithJustin/JuniperReader/core/sniff"
	"github.com/FocuswithJustin/JuniperReader/internal/cache"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
	"github.com/FocuswithJustin/JuniperReader/internal/server"
	"github.com/FocuswithJustin/JuniperReader/internal/store"
	"github.com/FocuswithJustin/JuniperReader/internal/validation"
)

// Defaults for Options fields left zero.
const (
	DefaultSessionTTL     = 30 * time.Minute
	DefaultMaxMessageRate = 50
	DefaultMaxMessageSize = 1 << 20
)

// Options configures a Server.
type Options struct {
	Store   *store.Store
	Uploads *cas.Store
	// Unzlib inflates zlib streams inside legacy packed books.
	Unzlib func([]byte) ([]byte, error)

	Style         reader.Style
	SelectionWait time.Duration
	// SessionTTL is how long an opened book stays in memory after its last use.
	SessionTTL     time.Duration
	RequestTimeout time.Duration
	AllowedOrigins []string
	MaxMessageRate int
	MaxMessageSize int64
	Resources      corecache.Config
}

type openedBook struct {
	book   book.Book
	format sniff.Format
	name   string
}

// Server is the HTTP and WebSocket front of the reader.
type Server struct {
	opts       Options
	dispatcher *reader.Dispatcher
	books      *cache.TTLCache[string, *openedBook]
	resources  *corecache.Resources
	hub        *Hub
	upgrader   websocket.Upgrader
}

// New returns a server for opts.
func New(opts Options) *Server {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.MaxMessageRate <= 0 {
		opts.MaxMessageRate = DefaultMaxMessageRate
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	if opts.Resources.MaxSize <= 0 && opts.Resources.MaxBytes <= 0 {
		opts.Resources = corecache.DefaultConfig()
	}

	s := &Server{
		opts:       opts,
		dispatcher: reader.NewDispatcher(reader.DispatchOptions{Unzlib: opts.Unzlib}),
		books:      cache.New[string, *openedBook](opts.SessionTTL),
		resources:  corecache.NewResources(opts.Resources),
		hub:        NewHub(),
	}
	s.books.OnEvict(func(fp string, ob *openedBook) {
		n := s.resources.Forget(fp)
		logging.Debug("book evicted", "fingerprint", fp, "name", ob.name, "resources", n)
	})
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || server.OriginAllowed(origin, opts.AllowedOrigins) {
				return true
			}
			logging.SecurityEvent("origin_rejected", "websocket", "origin", origin)
			return false
		},
	}
	return s
}

// Hub returns the session hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routes wrapped in request logging and CORS.
func (s *Server) Handler() http.Handler {
	api := server.APICSPConfig()
	content := server.BookCSPConfig()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /api/books", server.SecurityHeaders(api, http.HandlerFunc(s.handleList)))
	mux.Handle("POST /api/books", server.SecurityHeaders(api, http.HandlerFunc(s.handleUpload)))
	mux.Handle("GET /api/books/{fp}", server.SecurityHeaders(api, http.HandlerFunc(s.handleBook)))
	mux.Handle("DELETE /api/books/{fp}", server.SecurityHeaders(api, http.HandlerFunc(s.handleDelete)))
	mux.Handle("GET /api/books/{fp}/annotations", server.SecurityHeaders(api, http.HandlerFunc(s.handleAnnotations)))
	mux.Handle("GET /books/{fp}/{href...}", server.SecurityHeaders(content, http.HandlerFunc(s.handleResource)))
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return logging.CombinedMiddleware(server.CORSMiddleware(server.CORSConfig{AllowedOrigins: s.opts.AllowedOrigins}, mux))
}

// Run starts the hub and the book sweeper and serves on addr until ctx is
// done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.hub.Run(ctx)
	go s.sweep(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logging.GetLogger().Handler(), slog.LevelError),
	}
	errc := make(chan error, 1)
	go func() {
		logging.Info("bridge listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		logging.Info("bridge shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// writeError answers with the status the error maps to. Server faults are
// logged at error level, client mistakes at debug.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := server.StatusFor(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		logging.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	server.WriteError(w, err)
}

func (s *Server) sweep(ctx context.Context) {
	every := min(s.opts.SessionTTL/2, time.Minute)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.books.Sweep(); n > 0 {
				logging.Debug("expired books swept", "count", n)
			}
		}
	}
}

// open returns the opened book for fp, opening it from the upload store on
// a miss.
func (s *Server) open(ctx context.Context, fp string) (*openedBook, error) {
	if ob, ok := s.books.Get(fp); ok {
		return ob, nil
	}
	data, entry, err := s.opts.Uploads.Get(fp)
	if err != nil {
		if errors.Is(err, cas.ErrBlobNotFound) || errors.Is(err, cas.ErrInvalidHash) {
			return nil, errors.NewNotFound("book", fp)
		}
		return nil, err
	}
	view, err := s.dispatcher.Open(ctx, sniff.NewBytesFile(entry.Name, entry.MediaType, data))
	if err != nil {
		return nil, err
	}
	ob := &openedBook{book: view.Book, format: view.Format, name: entry.Name}
	s.books.Set(fp, ob)
	return ob, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	server.WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.hub.Count(),
		"books":    s.books.Len(),
		"store":    store.GetInfo(),
	})
}

// BookSummary is one entry of the library listing.
type BookSummary struct {
	cas.Entry
	Format  string   `json:"format,omitempty"`
	Title   string   `json:"title,omitempty"`
	Authors []string `json:"authors,omitempty"`
}

func (s *Server) summary(ctx context.Context, e cas.Entry) BookSummary {
	sum := BookSummary{Entry: e}
	ob, err := s.open(ctx, e.Fingerprint)
	if err != nil {
		logging.WarnContext(ctx, "stored book does not open", "fingerprint", e.Fingerprint, "error", err)
		return sum
	}
	md := ob.book.Metadata()
	sum.Format = ob.format.String()
	sum.Title = md.Title
	sum.Authors = md.Authors
	return sum
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.opts.Uploads.List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]BookSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.summary(r.Context(), e))
	}
	server.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	fp := r.PathValue("fp")
	entry, err := s.opts.Uploads.Stat(fp)
	if err != nil {
		s.writeError(w, r, errors.NewNotFound("book", fp))
		return
	}
	ob, err := s.open(r.Context(), fp)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, OpenPayload{
		Fingerprint: entry.Fingerprint,
		Base:        resourceBase(fp),
		Format:      ob.format.String(),
		Metadata:    ob.book.Metadata(),
		TOC:         ob.book.TOC(),
		Sections:    ob.book.Sections(),
		FixedLayout: ob.book.FixedLayout(),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxUploadSize)

	name, mediaType, data, err := readUpload(r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			server.WriteJSON(w, http.StatusRequestEntityTooLarge, server.ErrorResponse{Error: validation.ErrTooLarge.Error()})
			return
		}
		s.writeError(w, r, errors.Wrap(errors.ErrInvalidInput, err.Error()))
		return
	}
	name, err = validation.ValidateUpload(name, int64(len(data)))
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrInvalidInput, err.Error()))
		return
	}
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = sniff.MediaTypeFor(name)
	}

	existed := s.opts.Uploads.Exists(book.Fingerprint(data))
	entry, err := s.opts.Uploads.Put(name, mediaType, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.open(ctx, entry.Fingerprint); err != nil {
		if !existed {
			if derr := s.opts.Uploads.Delete(entry.Fingerprint); derr != nil {
				logging.WarnContext(ctx, "rejected upload not removed", "fingerprint", entry.Fingerprint, "error", derr)
			}
		}
		s.writeError(w, r, err)
		return
	}

	sum := s.summary(ctx, entry)
	logging.InfoContext(ctx, "book uploaded", "fingerprint", entry.Fingerprint, "name", entry.Name, "format", sum.Format)
	s.hub.Broadcast(Outbound{Type: TypeLibrary, Data: map[string]any{"added": sum}})
	server.WriteJSON(w, http.StatusCreated, sum)
}

// readUpload reads a multipart "file" field or, for any other content type,
// the raw body named by the "name" query parameter.
func readUpload(r *http.Request) (name, mediaType string, data []byte, err error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return "", "", nil, err
		}
		defer f.Close()
		data, err = io.ReadAll(f)
		if err != nil {
			return "", "", nil, err
		}
		return hdr.Filename, hdr.Header.Get("Content-Type"), data, nil
	}
	data, err = io.ReadAll(r.Body)
	if err != nil {
		return "", "", nil, err
	}
	return r.URL.Query().Get("name"), ct, data, nil
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	fp := r.PathValue("fp")
	if err := s.opts.Uploads.Delete(fp); err != nil {
		s.writeError(w, r, errors.NewNotFound("book", fp))
		return
	}
	s.books.Delete(fp)
	s.resources.Forget(fp)
	s.hub.Broadcast(Outbound{Type: TypeLibrary, Data: map[string]any{"removed": fp}})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnnotations(w http.ResponseWriter, r *http.Request) {
	fp := r.PathValue("fp")
	if !s.opts.Uploads.Exists(fp) {
		s.writeError(w, r, errors.NewNotFound("book", fp))
		return
	}
	list, err := s.opts.Store.List(r.Context(), fp)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, list)
}

func (s *Server) handleResource(w http.ResponseWriter, r *http.Request) {
	fp := r.PathValue("fp")
	ob, err := s.open(r.Context(), fp)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	blob, err := s.resources.Load(r.Context(), ob.book, fp, r.PathValue("href"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if blob.MediaType != "" {
		w.Header().Set("Content-Type", blob.MediaType)
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(blob.Data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	fp := r.URL.Query().Get("book")
	if fp == "" {
		s.writeError(w, r, errors.Wrap(errors.ErrInvalidInput, "missing book parameter"))
		return
	}
	ob, err := s.open(r.Context(), fp)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(s.opts.MaxMessageSize)

	// The request context ends when the handler returns, so the session
	// outlives it on its own context.
	ctx := context.WithoutCancel(r.Context())
	sess, err := s.startSession(ctx, conn, fp, ob)
	if err != nil {
		logging.Error("session start failed", "book", fp, "error", err)
		conn.Close()
		return
	}
	sess.run(ctx)
}

func (s *Server) startSession(ctx context.Context, conn *websocket.Conn, fp string, ob *openedBook) (*Session, error) {
	id := uuid.NewString()
	sess := newSession(id, fp, s.hub, conn, s.opts.Store, s.opts.MaxMessageRate)

	if err := sess.enqueue(Outbound{Type: TypeHello, Data: map[string]string{"session": id}}); err != nil {
		return nil, err
	}

	sess.surface = NewSurface(sess.enqueue, s.opts.RequestTimeout, OpenPayload{
		Session:     id,
		Fingerprint: fp,
		Base:        resourceBase(fp),
		Format:      ob.format.String(),
	})
	if err := sess.surface.Open(ctx, ob.book); err != nil {
		return nil, err
	}

	annotations, err := s.opts.Store.List(ctx, fp)
	if err != nil {
		return nil, err
	}
	last, _, err := s.opts.Store.LastLocation(ctx, fp)
	if err != nil {
		return nil, err
	}

	view := &reader.View{Book: ob.book, Surface: sess.surface, Format: ob.format, Name: ob.name}
	sess.reader = reader.New(view, reader.Options{
		Annotations:      annotations,
		LastLocation:     last,
		Style:            s.opts.Style,
		SelectionWait:    s.opts.SelectionWait,
		OnSelection:      sess.onSelection,
		OnShowAnnotation: sess.onShowAnnotation,
		OnRelocate:       sess.onRelocate,
	})
	if err := sess.reader.Start(); err != nil {
		logging.Warn("reader started with errors", "session", id, "error", err)
	}
	return sess, nil
}

func resourceBase(fp string) string {
	return fmt.Sprintf("/books/%s/", fp)
}
