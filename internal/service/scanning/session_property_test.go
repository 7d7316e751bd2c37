package scanning

import (
	"context"
	"fmt"
	"image"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/mamadbah2/balsam/internal/domain/models"
)

// TestLiveSessionProperties drives live sessions over random frame sequences.
func TestLiveSessionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("at most one dispatch and balanced camera use", prop.ForAll(
		func(blanks int, payloads int, cancelEarly bool) bool {
			frames := make([]image.Image, 0, blanks+payloads)
			for i := 0; i < blanks; i++ {
				frames = append(frames, blankFrame())
			}
			for i := 0; i < payloads; i++ {
				frames = append(frames, labelledFrame(fmt.Sprintf("P-%d", i)))
			}

			h := newHarness(&fakeProvider{frames: frames}, &fakePlatform{formats: []string{"qr_code"}})
			s := h.session()
			if err := s.Start(context.Background(), models.CaptureLiveNative); err != nil {
				return false
			}
			if cancelEarly {
				s.Cancel()
			}
			waitSettled(t, s)

			calls := h.dispatcher.calls()
			acquired, released := h.cameras.Counts()
			if acquired != released || h.cameras.Held() {
				return false
			}

			switch s.State() {
			case models.StateDecoded:
				return len(calls) == 1 && calls[0].Payload == "P-0"
			case models.StateCancelled:
				return len(calls) == 0 && cancelEarly
			default:
				return false
			}
		},
		gen.IntRange(0, 8),
		gen.IntRange(1, 4),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// TestUploadSessionProperties checks that M readable images out of N give M dispatches.
func TestUploadSessionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 15
	properties := gopter.NewProperties(parameters)

	qr := qrPNG(t, "UPLOADED")
	blank := blankPNG(t)

	properties.Property("dispatches one drug per readable image", prop.ForAll(
		func(readable []bool) bool {
			uploads := make([]Upload, len(readable))
			want := 0
			for i, ok := range readable {
				uploads[i] = Upload{Name: fmt.Sprintf("img-%d.png", i), Data: blank}
				if ok {
					uploads[i].Data = qr
					want++
				}
			}

			h := newHarness(&fakeProvider{}, nil)
			s := h.session()
			if err := s.Start(context.Background(), models.CaptureUpload, uploads...); err != nil {
				return false
			}
			waitSettled(t, s)

			if len(h.dispatcher.calls()) != want || s.Status().Dispatched != want {
				return false
			}
			if want == 0 {
				return s.State() == models.StateFailed
			}
			return s.State() == models.StateDecoded
		},
		gen.SliceOfN(4, gen.Bool()),
	))

	properties.TestingRun(t)
}
