package storage

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestValidateImageType(t *testing.T) {
	assert.True(t, ValidateImageType("image/png", "cover"))
	assert.True(t, ValidateImageType("", "cover.JPEG"))
	assert.True(t, ValidateImageType("application/octet-stream", "cover.webp"))
	assert.False(t, ValidateImageType("video/mp4", "clip.mp4"))
	assert.False(t, ValidateImageType("", "notes.txt"))
}

func TestThumbnailKey(t *testing.T) {
	b := uuid.MustParse("6f1c2a4e-8d0b-4b51-9d7e-1f2a3b4c5d6e")
	o := uuid.MustParse("0a0b0c0d-0000-4000-8000-000000000001")

	assert.Equal(t, "thumbnails/"+b.String()+"/"+o.String()+".png", ThumbnailKey(b, o, "My Cover.PNG"))

	key := ThumbnailKey(b, o, "../../etc/passwd")
	assert.True(t, strings.HasPrefix(key, "thumbnails/"+b.String()+"/"))
	assert.Equal(t, "thumbnails/"+b.String()+"/"+o.String(), key)
}

func TestContentTypeForFilename(t *testing.T) {
	assert.Equal(t, "image/jpeg", ContentTypeForFilename("a.jpg"))
	assert.Equal(t, "image/gif", ContentTypeForFilename("a.GIF"))
	assert.Equal(t, "application/octet-stream", ContentTypeForFilename("a.bmp"))
}
