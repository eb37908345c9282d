package qr

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// DefaultImageSize размер стороны PNG в пикселях
const DefaultImageSize = 256

// RenderDataURI рисует QR код и возвращает его как data:image/png;base64,...
func RenderDataURI(content string, size int) (string, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("failed to render qr code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
