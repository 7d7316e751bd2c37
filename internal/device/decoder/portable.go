package decoder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/mamadbah2/balsam/internal/domain/models"
)

// Portable decodes QR codes in software. It works on any image and is
// always available, at a higher CPU cost than the platform detector.
type Portable struct {
	mu     sync.Mutex
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

// NewPortable returns a software QR decoder.
func NewPortable() *Portable {
	return &Portable{
		reader: qrcode.NewQRCodeReader(),
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Name implements Adapter.
func (p *Portable) Name() string { return "portable" }

// Detect implements Adapter.
func (p *Portable) Detect(ctx context.Context, frame image.Image) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if frame == nil {
		return "", false, fmt.Errorf("portable detect: nil frame: %w", models.ErrDecode)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(frame)
	if err != nil {
		return "", false, fmt.Errorf("portable detect: %v: %w", err, models.ErrDecode)
	}

	// The reader keeps decoding state between calls.
	p.mu.Lock()
	result, err := p.reader.Decode(bmp, p.hints)
	p.reader.Reset()
	p.mu.Unlock()

	if err != nil {
		if isMiss(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("portable detect: %v: %w", err, models.ErrDecode)
	}
	return result.GetText(), true, nil
}

func isMiss(err error) bool {
	var notFound gozxing.NotFoundException
	var checksum gozxing.ChecksumException
	var format gozxing.FormatException
	return errors.As(err, &notFound) || errors.As(err, &checksum) || errors.As(err, &format)
}
