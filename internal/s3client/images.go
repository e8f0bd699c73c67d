package s3client

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
)

// MaxImageBytes bounds one uploaded image.
const MaxImageBytes = 5 << 20

var (
	// ErrUnsupportedImage is returned for content that is not a PNG, JPEG,
	// GIF or WebP image, whatever the file name says.
	ErrUnsupportedImage = errors.New("s3client: unsupported image type")
	// ErrImageTooLarge is returned for content over MaxImageBytes.
	ErrImageTooLarge = errors.New("s3client: image too large")
)

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// SniffImage returns the content type and key extension of an image. The
// type comes from the bytes; filename only picks between .jpg and .jpeg.
func SniffImage(filename string, content []byte) (contentType, ext string, err error) {
	if len(content) > MaxImageBytes {
		return "", "", ErrImageTooLarge
	}
	contentType = http.DetectContentType(content)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", "", ErrUnsupportedImage
	}
	if given := strings.ToLower(path.Ext(filename)); given == ".jpeg" && ext == ".jpg" {
		ext = given
	}
	return contentType, ext, nil
}

// PutImage stores an image uploaded by userID under a fresh key and returns
// the key.
func (c *Client) PutImage(ctx context.Context, userID, filename string, content []byte) (string, error) {
	contentType, ext, err := SniffImage(filename, content)
	if err != nil {
		return "", err
	}
	key := ImageKey(userID, ext)
	if err := c.PutObject(ctx, key, content, contentType); err != nil {
		return "", err
	}
	return key, nil
}
