// Package virtual creates uinput devices that show up as new slaves in the
// X hierarchy. They are handy for trying layouts without extra hardware.
package virtual

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ThomasT75/uinput"
	"github.com/bnema/xhier/internal/logger"
)

// DefaultPath is the uinput control node
const DefaultPath = "/dev/uinput"

// ErrClosed is returned when a device set is used after Close
var ErrClosed = errors.New("virtual devices closed")

// Kind selects the device type to create
type Kind string

const (
	KindMouse    Kind = "mouse"
	KindKeyboard Kind = "keyboard"
)

// ParseKind parses a device kind name
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mouse", "pointer":
		return KindMouse, nil
	case "keyboard", "kbd":
		return KindKeyboard, nil
	default:
		return "", fmt.Errorf("unknown device kind %q (want mouse or keyboard)", s)
	}
}

// ParseSpec parses "kind:name", for example "mouse:Test mouse"
func ParseSpec(s string) (Spec, error) {
	kind, name, ok := strings.Cut(s, ":")
	if !ok {
		return Spec{}, fmt.Errorf("device %q: want kind:name", s)
	}
	k, err := ParseKind(kind)
	if err != nil {
		return Spec{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Spec{}, fmt.Errorf("device %q: empty name", s)
	}
	return Spec{Kind: k, Name: name}, nil
}

// creator opens one device; tests replace it
type creator func(path string, kind Kind, name string) (io.Closer, error)

func createUinput(path string, kind Kind, name string) (io.Closer, error) {
	switch kind {
	case KindMouse:
		return uinput.CreateMouse(path, []byte(name))
	case KindKeyboard:
		return uinput.CreateKeyboard(path, []byte(name))
	default:
		return nil, fmt.Errorf("unknown device kind %q", kind)
	}
}

// Device is one created device
type Device struct {
	Kind Kind
	Name string
	dev  io.Closer
}

// Set owns a group of virtual devices
type Set struct {
	path   string
	create creator

	mu      sync.Mutex
	devices []*Device
	closed  bool
}

// NewSet creates an empty device set on the given uinput node
func NewSet(path string) *Set {
	if path == "" {
		path = DefaultPath
	}
	return &Set{path: path, create: createUinput}
}

// Add creates a device and keeps it open until the set is closed
func (s *Set) Add(kind Kind, name string) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("device name must not be empty")
	}
	dev, err := s.create(s.path, kind, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual %s %q: %w", kind, name, err)
	}
	d := &Device{Kind: kind, Name: name, dev: dev}
	s.devices = append(s.devices, d)
	logger.Infof("Created virtual %s %q", kind, name)
	return d, nil
}

// Devices returns the open devices in creation order
func (s *Set) Devices() []*Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Device(nil), s.devices...)
}

// Close destroys every device, newest first
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for i := len(s.devices) - 1; i >= 0; i-- {
		d := s.devices[i]
		if err := d.dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", d.Name, err))
			continue
		}
		logger.Debugf("Removed virtual %s %q", d.Kind, d.Name)
	}
	s.devices = nil
	return errors.Join(errs...)
}

// Hold creates the requested devices and keeps them until ctx is done
func (s *Set) Hold(ctx context.Context, specs []Spec) error {
	for _, spec := range specs {
		if _, err := s.Add(spec.Kind, spec.Name); err != nil {
			_ = s.Close()
			return err
		}
	}
	<-ctx.Done()
	return s.Close()
}

// Spec names a device to create
type Spec struct {
	Kind Kind
	Name string
}
