/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const reloadDebounce = 250 * time.Millisecond

// fileDocument is the on-disk layout:
//
//	devices:
//	  dev-1:
//	    timezone: America/Los_Angeles
//	    opt_out_start: "07:00"
//	    opt_out_end: "09:00"
type fileDocument struct {
	Devices map[string]Record `yaml:"devices"`
}

// FileLookup serves policies from a YAML file held in memory.
type FileLookup struct {
	path   string
	logger zerolog.Logger

	mu      sync.RWMutex
	devices map[string]Record
}

// LoadFile reads path and returns a lookup over its contents.
func LoadFile(path string, logger zerolog.Logger) (*FileLookup, error) {
	f := &FileLookup{
		path:   path,
		logger: logger.With().Str("component", "policy_file").Logger(),
	}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// ParseFile decodes a policy document.
func ParseFile(data []byte) (map[string]Record, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	if doc.Devices == nil {
		doc.Devices = map[string]Record{}
	}
	return doc.Devices, nil
}

// Reload re-reads the file. On error the previous contents stay in place.
func (f *FileLookup) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	devices, err := ParseFile(data)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.devices = devices
	f.mu.Unlock()
	f.logger.Debug().Str("path", f.path).Int("devices", len(devices)).Msg("policy file loaded")
	return nil
}

// Lookup implements Lookup.
func (f *FileLookup) Lookup(_ context.Context, deviceID string) (Record, error) {
	f.mu.RLock()
	rec, ok := f.devices[deviceID]
	f.mu.RUnlock()
	if !ok {
		return Record{}, ErrDeviceNotFound
	}
	return rec, nil
}

// Put implements Writer. The file is only ever edited by hand.
func (f *FileLookup) Put(context.Context, string, Record) error {
	return ErrReadOnly
}

// Watch reloads the file whenever it changes until ctx is cancelled. The
// parent directory is watched so editors that replace the file by rename
// are picked up. onReload, if set, runs after every successful reload.
func (f *FileLookup) Watch(ctx context.Context, onReload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(f.path)
	file := filepath.Base(f.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// Debounce bursts of events from a single save.
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	fire := make(chan struct{}, 1)
	schedule := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}

	f.logger.Info().Str("path", f.path).Msg("watching policy file")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) == file && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				schedule()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn().Err(err).Msg("policy file watch error")
			if strings.Contains(strings.ToLower(err.Error()), "overflow") {
				schedule()
			}
		case <-fire:
			if err := f.Reload(); err != nil {
				f.logger.Warn().Err(err).Str("path", f.path).Msg("policy file reload failed; keeping previous policies")
				continue
			}
			f.logger.Info().Str("path", f.path).Msg("policy file reloaded")
			if onReload != nil {
				onReload()
			}
		}
	}
}
