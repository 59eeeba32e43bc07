package services

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrUnsupportedUpload is returned for files that are not images.
var ErrUnsupportedUpload = errors.New("only image uploads are allowed")

// PictureStorage persists an uploaded picture and returns the reference
// stored verbatim on the recipient.
type PictureStorage interface {
	Save(ctx context.Context, fileHeader *multipart.FileHeader) (string, error)
}

// imageExtensions maps the sniffed content types accepted as pictures to
// the extension stored files get. The client's filename is never used.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// sniffImage detects the content type from the first 512 bytes of file and
// rewinds it. Anything outside imageExtensions is ErrUnsupportedUpload.
func sniffImage(file multipart.File) (contentType, ext string, err error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", "", errors.Wrap(err, "read upload")
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", "", errors.Wrap(err, "rewind upload")
	}

	contentType = http.DetectContentType(head[:n])
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", "", ErrUnsupportedUpload
	}
	return contentType, ext, nil
}

// openImage opens an upload and checks that it really is a picture.
func openImage(fileHeader *multipart.FileHeader) (multipart.File, string, string, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, "", "", errors.Wrap(err, "open upload")
	}
	contentType, ext, err := sniffImage(file)
	if err != nil {
		file.Close()
		return nil, "", "", err
	}
	return file, contentType, ext, nil
}

// LocalStorage writes pictures under Dir and returns "<URLPrefix>/<name>".
type LocalStorage struct {
	Dir       string
	URLPrefix string
}

func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create upload dir")
	}
	return &LocalStorage{Dir: dir, URLPrefix: "/uploads"}, nil
}

func (s *LocalStorage) Save(ctx context.Context, fileHeader *multipart.FileHeader) (string, error) {
	src, _, ext, err := openImage(fileHeader)
	if err != nil {
		return "", err
	}
	defer src.Close()

	name := uuid.New().String() + ext
	dst, err := os.Create(filepath.Join(s.Dir, name))
	if err != nil {
		return "", errors.Wrap(err, "create picture file")
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", errors.Wrap(err, "write picture file")
	}
	if err := dst.Close(); err != nil {
		return "", errors.Wrap(err, "close picture file")
	}

	return path.Join(s.URLPrefix, name), nil
}
