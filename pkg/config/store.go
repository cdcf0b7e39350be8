package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
	"gopkg.in/yaml.v3"
)

// Parse decodes, normalizes and validates a config file content.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %v", err)
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %v", err)
	}
	return &c, nil
}

// Load reads a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Store serves an immutable config snapshot. Readers never block,
// a reload swaps the whole snapshot.
type Store struct {
	path string
	cur  atomic.Pointer[Config]
	// Debounce delays a reload after file changes.
	Debounce time.Duration
	// OnReload is called after a successful reload, from the Watch goroutine.
	OnReload func(*Config)
}

// NewStore creates a Store serving cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{Debounce: 250 * time.Millisecond}
	s.cur.Store(cfg)
	return s
}

// OpenStore loads path into a Store which can Watch it.
func OpenStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := NewStore(cfg)
	s.path = path
	return s, nil
}

// Config returns the current snapshot.
func (s *Store) Config() *Config {
	return s.cur.Load()
}

// PwmChannelCount returns the number of configured outputs.
func (s *Store) PwmChannelCount() int {
	return len(s.cur.Load().Outputs)
}

// PwmChannel returns the config of output ch, zero value if not configured.
func (s *Store) PwmChannel(ch int) PwmChannel {
	outs := s.cur.Load().Outputs
	if ch < 0 || ch >= len(outs) {
		return PwmChannel{}
	}
	return outs[ch]
}

// IRProtocol returns the selected transponder protocol.
func (s *Store) IRProtocol() IRProtocol {
	return s.cur.Load().Transponder.Protocol
}

// TransponderID returns the configured transponder number.
func (s *Store) TransponderID() uint32 {
	return s.cur.Load().Transponder.ID
}

// ModelID returns the bound model id.
func (s *Store) ModelID() uint8 {
	return s.cur.Load().ModelID
}

// Reload reads the file again. On error the current snapshot is kept.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	s.cur.Store(cfg)
	if fn := s.OnReload; fn != nil {
		fn(cfg)
	}
	return nil
}

// Name implements Named.
func (s *Store) Name() string {
	return "config"
}

// Run implements Runnable, see Watch.
func (s *Store) Run(ctx context.Context) error {
	return s.Watch(ctx)
}

// Watch reloads the config when the file changes until ctx is done.
// The directory is watched as editors commonly replace files.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return ctx.Err()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	dir, file := filepath.Dir(s.path), filepath.Clean(s.path)
	if err := w.Add(dir); err != nil {
		return err
	}

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == file && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce = time.After(s.Debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			glog.Warningf("config watch %s: %v", s.path, err)
		case <-debounce:
			debounce = nil
			if err := s.Reload(); err != nil {
				glog.Warningf("config reload %s: %v", s.path, err)
			} else {
				glog.Infof("config reloaded from %s", s.path)
			}
		}
	}
}
