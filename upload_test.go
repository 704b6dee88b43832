package main

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func makePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: uint8((x + y) % 256), B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func postUpload(t *testing.T, app *App, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, filename, content)
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.routes().ServeHTTP(rec, req)
	return rec
}

func storedFiles(t *testing.T, app *App) []string {
	t.Helper()
	entries, err := os.ReadDir(app.Images.dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestUploadCompressesAndHashes(t *testing.T) {
	app := newTestApp(t)

	rec := postUpload(t, app, "photo.jpg", makeJPEG(t, 1200, 800))
	require.Equal(t, http.StatusCreated, rec.Code)

	var out ProfileImage
	decodeBody(t, rec, &out)
	require.True(t, strings.HasPrefix(out.URL, "http://localhost:3001/profile/image/"))
	// 4x4 components encode to a fixed 36-character blurhash
	require.Len(t, out.Blurhash, 36)

	files := storedFiles(t, app)
	require.Len(t, files, 1)

	f, err := os.Open(filepath.Join(app.Images.dir, files[0]))
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	require.LessOrEqual(t, cfg.Width, 600)
}

func TestUploadDoesNotUpscaleSmallImages(t *testing.T) {
	app := newTestApp(t)

	rec := postUpload(t, app, "small.jpg", makeJPEG(t, 100, 80))
	require.Equal(t, http.StatusCreated, rec.Code)

	files := storedFiles(t, app)
	require.Len(t, files, 1)

	f, err := os.Open(filepath.Join(app.Images.dir, files[0]))
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	require.Equal(t, 100, cfg.Width)
}

func TestUploadPNGIsReencodedAsJPEG(t *testing.T) {
	app := newTestApp(t)

	rec := postUpload(t, app, "pic.png", makePNG(t, 700, 300))
	require.Equal(t, http.StatusCreated, rec.Code)

	files := storedFiles(t, app)
	require.Len(t, files, 1)
	// original extension is preserved on the stored name
	require.True(t, strings.HasSuffix(files[0], ".png"))

	f, err := os.Open(filepath.Join(app.Images.dir, files[0]))
	require.NoError(t, err)
	defer f.Close()
	_, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	require.Equal(t, "jpeg", format, "content is always re-encoded as JPEG")
}

func TestUploadUniqueFilenames(t *testing.T) {
	app := newTestApp(t)
	content := makeJPEG(t, 300, 200)

	var urls []string
	for i := 0; i < 2; i++ {
		rec := postUpload(t, app, "same.jpg", content)
		require.Equal(t, http.StatusCreated, rec.Code)
		var out ProfileImage
		decodeBody(t, rec, &out)
		urls = append(urls, out.URL)
	}

	require.NotEqual(t, urls[0], urls[1], "re-uploading the same source must yield distinct names")
	require.Len(t, storedFiles(t, app), 2)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	app := newTestApp(t)

	oversized := bytes.Repeat([]byte{0xAB}, maxUploadBytes+1)
	rec := postUpload(t, app, "huge.jpg", oversized)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	var apiErr APIError
	decodeBody(t, rec, &apiErr)
	require.Equal(t, CodePayloadTooLarge, apiErr.Code)

	require.Empty(t, storedFiles(t, app), "no file may persist for a rejected upload")
}

func TestUploadCleansUpOnCompressFailure(t *testing.T) {
	app := newTestApp(t)

	rec := postUpload(t, app, "broken.jpg", []byte("this is not an image at all"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var apiErr APIError
	decodeBody(t, rec, &apiErr)
	require.Equal(t, CodeProcessingFailed, apiErr.Code)

	require.Empty(t, storedFiles(t, app), "aborted pipeline must remove the received file")
}

func TestUploadMissingImageField(t *testing.T) {
	app := newTestApp(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("note", "no file here"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	app.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImageRetrieval(t *testing.T) {
	app := newTestApp(t)

	rec := postUpload(t, app, "photo.jpg", makeJPEG(t, 300, 200))
	require.Equal(t, http.StatusCreated, rec.Code)
	var out ProfileImage
	decodeBody(t, rec, &out)

	name := out.URL[strings.LastIndex(out.URL, "/")+1:]
	req := httptest.NewRequest("GET", "/profile/image/"+name, nil)
	get := httptest.NewRecorder()
	app.routes().ServeHTTP(get, req)

	require.Equal(t, http.StatusOK, get.Code)
	_, format, err := image.DecodeConfig(bytes.NewReader(get.Body.Bytes()))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
}

func TestImageRetrievalUnknownFile(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest("GET", "/profile/image/nope.jpg", nil)
	rec := httptest.NewRecorder()
	app.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
