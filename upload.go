package main

import (
	"errors"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/buckket/go-blurhash"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	// maxUploadBytes is the hard ceiling on an uploaded image
	maxUploadBytes = 3_000_000
	// compressTargetWidth is the maximum stored width; smaller images are not upscaled
	compressTargetWidth = 600
	compressJPEGQuality = 80
	// placeholder inputs: image fitted inside this bound, fixed component grid
	placeholderBound      = 32
	placeholderComponents = 4
)

var ErrPayloadTooLarge = errors.New("uploaded file exceeds size limit")

// processingError marks a failure inside the compress or placeholder stage.
// The stage message is what the client sees; the cause stays server-side.
type processingError struct {
	stage string
	cause error
}

func (e *processingError) Error() string { return e.stage }
func (e *processingError) Unwrap() error { return e.cause }

// ImagePipeline turns an uploaded file into a compressed stored image plus a
// blurhash placeholder. Stages run strictly in order; a failure after the
// file reaches disk removes it again, so an aborted upload leaves nothing
// behind.
type ImagePipeline struct {
	dir     string
	baseURL string
}

func NewImagePipeline(dir, baseURL string) *ImagePipeline {
	return &ImagePipeline{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

// Process runs receive -> compress -> placeholder and returns the stored
// image reference.
func (ip *ImagePipeline) Process(file multipart.File, header *multipart.FileHeader) (*ProfileImage, error) {
	if header.Size > maxUploadBytes {
		return nil, ErrPayloadTooLarge
	}

	filename, err := ip.receive(file, header)
	if err != nil {
		return nil, err
	}

	if err := ip.compress(filename); err != nil {
		ip.discard(filename)
		return nil, &processingError{stage: "Unable to compress image", cause: err}
	}

	hash, err := ip.placeholder(filename)
	if err != nil {
		ip.discard(filename)
		return nil, &processingError{stage: "Unable to generate blurhash", cause: err}
	}

	return &ProfileImage{
		URL:      ip.baseURL + "/profile/image/" + filename,
		Blurhash: hash,
	}, nil
}

// receive stores the raw upload under a fresh unique name, keeping the
// original extension.
func (ip *ImagePipeline) receive(file multipart.File, header *multipart.FileHeader) (string, error) {
	if err := os.MkdirAll(ip.dir, 0o755); err != nil {
		return "", err
	}
	filename := uuid.NewString() + filepath.Ext(header.Filename)
	dst, err := os.Create(filepath.Join(ip.dir, filename))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		ip.discard(filename)
		return "", err
	}
	if err := dst.Close(); err != nil {
		ip.discard(filename)
		return "", err
	}
	return filename, nil
}

// compress re-encodes the stored file as JPEG at a fixed quality, resized to
// the target width when wider. The file is overwritten in place.
func (ip *ImagePipeline) compress(filename string) error {
	path := filepath.Join(ip.dir, filename)
	img, err := imaging.Open(path)
	if err != nil {
		return err
	}
	if img.Bounds().Dx() > compressTargetWidth {
		img = imaging.Resize(img, compressTargetWidth, 0, imaging.Lanczos)
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := imaging.Encode(out, img, imaging.JPEG, imaging.JPEGQuality(compressJPEGQuality)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// placeholder derives the blurhash from a small resample of the compressed
// image.
func (ip *ImagePipeline) placeholder(filename string) (string, error) {
	img, err := imaging.Open(filepath.Join(ip.dir, filename))
	if err != nil {
		return "", err
	}
	thumb := imaging.Fit(img, placeholderBound, placeholderBound, imaging.Lanczos)
	return blurhash.Encode(placeholderComponents, placeholderComponents, thumb)
}

// discard removes a stored file; used on pipeline abort and for best-effort
// cleanup of replaced profile images. Failures are logged, never surfaced.
func (ip *ImagePipeline) discard(filename string) {
	if filename == "" {
		return
	}
	if err := os.Remove(filepath.Join(ip.dir, filepath.Base(filename))); err != nil && !os.IsNotExist(err) {
		log.Printf("image cleanup: %v", err)
	}
}

// DiscardByURL deletes the stored file a profile image URL points at.
func (ip *ImagePipeline) DiscardByURL(imageURL string) {
	parts := strings.Split(imageURL, "/")
	ip.discard(parts[len(parts)-1])
}

// HandleUpload accepts a single multipart "image" field and runs the pipeline.
func (a *App) HandleUpload(w http.ResponseWriter, r *http.Request) {
	// cap the whole request body; the multipart framing gets a little headroom
	// on top of the per-file ceiling
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+512*1024)

	file, header, err := r.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Missing image field")
		return
	}
	defer file.Close()

	img, err := a.Images.Process(file, header)
	if err != nil {
		var procErr *processingError
		switch {
		case errors.Is(err, ErrPayloadTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "File too large")
		case errors.As(err, &procErr):
			log.Printf("upload pipeline: %s: %v", procErr.stage, procErr.cause)
			writeError(w, http.StatusInternalServerError, CodeProcessingFailed, procErr.stage)
		default:
			log.Printf("upload: %v", err)
			writeError(w, http.StatusInternalServerError, CodeInternalError, "Image upload failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, img)
}

// HandleImage serves a stored image read-only. No auth on retrieval.
func (a *App) HandleImage(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["file"]
	if name != filepath.Base(name) || strings.Contains(name, "..") {
		writeError(w, http.StatusNotFound, CodeNotFound, "Image not found")
		return
	}
	path := filepath.Join(a.Images.dir, name)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "Image not found")
		return
	}
	http.ServeFile(w, r, path)
}
