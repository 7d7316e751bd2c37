package camera

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mamadbah2/balsam/internal/domain/models"
)

var frameExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

// DirectoryProvider replays the still images of a directory as a video
// stream. The device only shows up once the directory holds at least one
// image, so a station started before frames arrive keeps retrying.
type DirectoryProvider struct {
	dir string
}

// NewDirectoryProvider returns a provider reading frames from dir.
func NewDirectoryProvider(dir string) *DirectoryProvider {
	return &DirectoryProvider{dir: dir}
}

// Devices lists a single device when the directory has frames.
func (p *DirectoryProvider) Devices(ctx context.Context) ([]DeviceInfo, error) {
	frames, err := p.frames()
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, nil
	}
	return []DeviceInfo{{ID: p.dir, Label: "frames:" + filepath.Base(p.dir)}}, nil
}

// Open starts replaying the frames found at this moment.
func (p *DirectoryProvider) Open(ctx context.Context, c Constraints) (Stream, error) {
	frames, err := p.frames()
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, models.ErrDeviceUnavailable
	}
	return &directoryStream{paths: frames}, nil
}

func (p *DirectoryProvider) frames() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read frames dir %s: %w", p.dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !frameExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(p.dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

type directoryStream struct {
	mu     sync.Mutex
	paths  []string
	next   int
	closed bool
	torch  bool
}

func (s *directoryStream) Frame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, models.ErrStreamClosed
	}
	path := s.paths[s.next%len(s.paths)]
	s.next++
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return img, nil
}

func (s *directoryStream) ToggleTorch() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.torch = !s.torch
	return s.torch, nil
}

func (s *directoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
