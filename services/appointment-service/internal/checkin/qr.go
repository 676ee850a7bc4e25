package checkin

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/makiuchi-d/gozxing"
	zxingqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/skip2/go-qrcode"

	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
)

// RenderQR encodes payload as a PNG QR code of size x size pixels.
func RenderQR(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}

// DecodeQR extracts the text of the first QR code in a PNG or JPEG image.
func DecodeQR(r io.Reader) (string, error) {
	const op = "checkin.DecodeQR"

	img, _, err := image.Decode(r)
	if err != nil {
		return "", model.Wrap(op, model.ErrInvalidToken, "unreadable image", err)
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", model.Wrap(op, model.ErrInvalidToken, "unreadable image", err)
	}
	res, err := zxingqr.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", model.Wrap(op, model.ErrInvalidToken, "no code found", err)
	}
	return res.GetText(), nil
}
