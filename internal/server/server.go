package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pixbuf/internal/bitmap"
	"pixbuf/internal/codec"
	"pixbuf/internal/native"
	"pixbuf/internal/stream"
	"pixbuf/internal/version"
)

// PixdataContentType marks request and response bodies holding a serialized
// pixdata stream.
const PixdataContentType = "application/x-gdk-pixdata"

type Config struct {
	Host string
	Port int
	// PreviewFactor is the downsample factor of previews sent to subscribers.
	PreviewFactor int
	// MaxUploadBytes bounds POST /frames bodies.
	MaxUploadBytes int64
	// DefaultFormat is used by GET /frames/{id} without a format parameter.
	DefaultFormat string
	// Alloc creates native buffers for uploaded frames; nil uses the
	// in-process pixbuf.
	Alloc native.Allocator
}

type Server struct {
	cfg      Config
	mu       sync.Mutex
	frames   map[string]*frame
	sessions map[string]*session
	previews *stream.Broadcaster
	seq      uint64
	started  time.Time
}

type frame struct {
	id      string
	buf     native.Buffer
	source  string
	created time.Time
}

// FrameInfo describes a stored frame.
type FrameInfo struct {
	ID      string    `json:"id"`
	Width   int       `json:"width"`
	Height  int       `json:"height"`
	Stride  int       `json:"stride"`
	Format  string    `json:"format"`
	Created time.Time `json:"created"`
}

func New(cfg Config) *Server {
	if cfg.PreviewFactor <= 0 {
		cfg.PreviewFactor = 4
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	if codec.Normalize(cfg.DefaultFormat) == "" && cfg.DefaultFormat != "raw" && cfg.DefaultFormat != "pixdata" {
		cfg.DefaultFormat = "png"
	}
	if cfg.Alloc == nil {
		cfg.Alloc = native.AllocPixbuf
	}
	return &Server{
		cfg:      cfg,
		frames:   map[string]*frame{},
		sessions: map[string]*session{},
		previews: stream.NewBroadcaster(),
		started:  time.Now(),
	}
}

// Previews returns the broadcaster that receives a preview of every stored
// frame.
func (s *Server) Previews() *stream.Broadcaster { return s.previews }

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/frames", s.handleFrames)
	mux.HandleFunc("/frames/", s.handleFrame)
	mux.HandleFunc("/previews", s.handlePreviewPost)
	mux.HandleFunc("/previews/", s.handlePreviewResource)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, indexHTML)
	})
}

// Close drops every preview session and stops the broadcaster.
func (s *Server) Close() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.closeSession(id)
	}
	s.previews.Close()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	allowCORS(w, r)
	s.mu.Lock()
	nFrames, nSessions := len(s.frames), len(s.sessions)
	s.mu.Unlock()
	counters := GetCounters()
	for k, v := range stream.GetCounters() {
		counters[k] = v
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  version.Get(),
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"frames":   nFrames,
		"sessions": nSessions,
		"counters": counters,
	})
}

// /frames: POST stores a new frame, GET lists stored frames.
func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	allowCORS(w, r)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"frames": s.list()})
	case http.MethodPost:
		s.handleFramePost(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleFramePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("read body: %v", err), http.StatusRequestEntityTooLarge)
		return
	}
	if len(body) == 0 {
		http.Error(w, "empty body", http.StatusBadRequest)
		return
	}

	var (
		bmp    []byte
		width  int
		height int
		source string
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), PixdataContentType) {
		pd, err := native.DecodePixdata(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if bmp, err = bitmap.ReadFromNative(pd); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		width, height, source = pd.Width(), pd.Height(), "pixdata"
	} else {
		if bmp, width, height, source, err = codec.Decode(bytes.NewReader(body)); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	buf, err := bitmap.ToNative(bmp, width, height, nil, s.cfg.Alloc)
	if err != nil {
		log.Printf("store frame %dx%d: %v", width, height, err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	id := uuid.New().String()
	f := &frame{id: id, buf: buf, source: source, created: time.Now()}
	s.mu.Lock()
	s.frames[id] = f
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	incFramesStored()
	log.Printf("frame %s: stored %dx%d (%s)", id, width, height, source)

	s.publishPreview(id, seq, bmp, width, height)

	w.Header().Set("Location", "/frames/"+id)
	writeJSON(w, http.StatusCreated, f.info())
}

// publishPreview downsamples bmp and hands it to preview subscribers. The
// factor shrinks for images smaller than the configured factor so every
// frame yields at least one pixel, and grows for images too wide or tall to
// packetize.
func (s *Server) publishPreview(id string, seq uint64, bmp []byte, w, h int) {
	if s.previews.Len() == 0 || w == 0 || h == 0 {
		return
	}
	factor := min(s.cfg.PreviewFactor, w, h)
	factor = max(factor, w/(stream.MaxRawWidth+1)+1, h/(stream.MaxRawHeight+1)+1)
	dw, dh := bitmap.DownsampledSize(w, h, factor)
	if dw == 0 || dh == 0 {
		log.Printf("frame %s: preview skipped: %dx%d has no %dx factor that fits a packet", id, w, h, factor)
		return
	}
	small, err := bitmap.Downsample(bmp, w, h, bitmap.BytesPerPixel, factor)
	if err != nil {
		log.Printf("frame %s: preview: %v", id, err)
		return
	}
	s.previews.Publish(stream.NewPreview(id, seq, small, dw, dh))
}

// /frames/{id}: GET returns the frame, DELETE removes it.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	allowCORS(w, r)
	id := strings.TrimPrefix(r.URL.Path, "/frames/")
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		s.handleFrameGet(w, r, id)
	case http.MethodDelete:
		s.mu.Lock()
		_, ok := s.frames[id]
		delete(s.frames, id)
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		incFramesDeleted()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleFrameGet(w http.ResponseWriter, r *http.Request, id string) {
	q := r.URL.Query()
	factor := 1
	if v := q.Get("factor"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "factor must be an integer", http.StatusBadRequest)
			return
		}
		factor = n
	}
	format := q.Get("format")
	if format == "" {
		format = s.cfg.DefaultFormat
	}
	tag := strings.ToLower(format)
	if tag != "raw" && tag != "pixdata" {
		if tag = codec.Normalize(format); tag == "" {
			http.Error(w, fmt.Sprintf("unknown format %q", format), http.StatusBadRequest)
			return
		}
	}

	bmp, width, height, err := s.read(id)
	if errors.Is(err, errNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Printf("frame %s: read: %v", id, err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	if factor != 1 {
		if bmp, err = bitmap.Downsample(bmp, width, height, bitmap.BytesPerPixel, factor); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		width, height = bitmap.DownsampledSize(width, height, factor)
	}

	var out bytes.Buffer
	contentType := codec.ContentType(tag)
	switch tag {
	case "raw":
		out.Write(bmp)
	case "pixdata":
		nb, err := bitmap.ToNative(bmp, width, height, nil, native.AllocPixbuf)
		if err == nil {
			var pd []byte
			if pd, err = native.EncodePixdata(nb); err == nil {
				out.Write(pd)
			}
		}
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		contentType = PixdataContentType
	default:
		if width == 0 || height == 0 {
			http.Error(w, fmt.Sprintf("factor %d leaves no pixels to encode as %s; use format=raw", factor, tag), http.StatusBadRequest)
			return
		}
		if err := codec.Encode(&out, bmp, width, height, tag); err != nil {
			log.Printf("frame %s: encode %s: %v", id, tag, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	incFramesServed()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Width", strconv.Itoa(width))
	w.Header().Set("X-Height", strconv.Itoa(height))
	w.Header().Set("Content-Length", strconv.Itoa(out.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Bytes())
}

var errNotFound = errors.New("frame not found")

// read copies a stored frame out of its native buffer. The store lock is
// held for the copy so concurrent requests never touch the same buffer.
func (s *Server) read(id string) ([]byte, int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.frames[id]
	if !ok {
		return nil, 0, 0, errNotFound
	}
	bmp, err := bitmap.ReadFromNative(f.buf)
	if err != nil {
		return nil, 0, 0, err
	}
	return bmp, f.buf.Width(), f.buf.Height(), nil
}

func (s *Server) list() []FrameInfo {
	s.mu.Lock()
	out := make([]FrameInfo, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, f.info())
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

func (f *frame) info() FrameInfo {
	return FrameInfo{
		ID:      f.id,
		Width:   f.buf.Width(),
		Height:  f.buf.Height(),
		Stride:  f.buf.RowStride(),
		Format:  f.source,
		Created: f.created,
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, bitmap.ErrPrecondition), errors.Is(err, native.ErrBadPixdata),
		errors.Is(err, native.ErrBadStride), errors.Is(err, native.ErrBadSize):
		return http.StatusBadRequest
	case errors.Is(err, bitmap.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func allowCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Expose-Headers", "Location, X-Width, X-Height")
}
