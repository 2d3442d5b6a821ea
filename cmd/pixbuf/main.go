package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"pixbuf/internal/bitmap"
	"pixbuf/internal/codec"
	"pixbuf/internal/native"
	"pixbuf/internal/server"
	"pixbuf/internal/version"
)

func main() {
	host := flag.String("host", getEnv("HOST", "0.0.0.0"), "bind host")
	port := flag.Int("port", getEnvInt("PORT", 8000), "bind port")
	previewFactor := flag.Int("preview-factor", getEnvInt("PREVIEW_FACTOR", 4), "downsample factor for previews")
	maxUpload := flag.Int("max-upload-bytes", getEnvInt("MAX_UPLOAD_BYTES", 32<<20), "largest accepted POST /frames body")
	format := flag.String("format", getEnv("DEFAULT_FORMAT", "png"), "default output format (png, jpeg, bmp, tiff, raw, pixdata)")
	nativeKind := flag.String("native", getEnv("NATIVE_BUFFER", "go"), "native buffer backend: go or gdk")
	in := flag.String("in", "", "convert this image file and exit")
	out := flag.String("out", "", "output file for -in (format from extension)")
	factor := flag.Int("factor", 1, "downsample factor for -in")
	flag.Parse()

	log.Printf("%s", version.String())

	alloc := native.AllocPixbuf
	if strings.EqualFold(*nativeKind, "gdk") {
		if native.GdkAvailable() {
			alloc = native.AllocGdkPixbuf
		} else {
			log.Printf("gdk native buffers unavailable (%v), falling back to in-process pixbufs", native.ErrNoGdk)
		}
	}

	if *in != "" {
		if err := convert(*in, *out, *factor, alloc); err != nil {
			log.Fatalf("convert: %v", err)
		}
		return
	}

	cfg := server.Config{
		Host:           *host,
		Port:           *port,
		PreviewFactor:  *previewFactor,
		MaxUploadBytes: int64(*maxUpload),
		DefaultFormat:  *format,
		Alloc:          alloc,
	}

	mux := http.NewServeMux()
	srvc := server.New(cfg)
	srvc.RegisterRoutes(mux)
	defer srvc.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("pixbuf server listening on http://%s\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

// convert loads in, passes it through a native buffer, optionally downsamples
// it and writes the result to out.
func convert(in, out string, factor int, alloc native.Allocator) error {
	if out == "" {
		return fmt.Errorf("-out is required with -in")
	}
	bmp, w, h, err := codec.Load(in)
	if err != nil {
		return err
	}
	buf, err := bitmap.ToNative(bmp, w, h, nil, alloc)
	if err != nil {
		return err
	}
	if bmp, err = bitmap.ReadFromNative(buf); err != nil {
		return err
	}
	if factor != 1 {
		if bmp, err = bitmap.Downsample(bmp, w, h, bitmap.BytesPerPixel, factor); err != nil {
			return err
		}
		w, h = bitmap.DownsampledSize(w, h, factor)
	}
	if err := codec.Save(out, bmp, w, h, filepath.Ext(out)); err != nil {
		return err
	}
	log.Printf("wrote %s (%dx%d)", out, w, h)
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var x int
		if _, err := fmt.Sscanf(v, "%d", &x); err == nil {
			return x
		}
	}
	return def
}
