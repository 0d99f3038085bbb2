/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/friendsincode/limitgate/internal/command"
)

// CommandSink receives accepted commands with the downstream token.
type CommandSink interface {
	Store(ctx context.Context, cmd command.NormalizedCommand, token string) error
}

// EnvelopeHeader carries the downstream authorization.
type EnvelopeHeader struct {
	Authorization string `json:"Authorization"`
}

// Envelope is the stored object body.
type Envelope struct {
	Header EnvelopeHeader            `json:"Header"`
	Body   command.NormalizedCommand `json:"Body"`
}

// CommandKey is the object key for a device's latest command.
func CommandKey(deviceID string) string {
	return deviceID + ".json"
}

// CommandStore writes each command to <devId>.json, replacing the previous one.
type CommandStore struct {
	objects ObjectStore
}

// NewCommandStore wraps an object store.
func NewCommandStore(objects ObjectStore) *CommandStore {
	return &CommandStore{objects: objects}
}

// Store implements CommandSink.
func (s *CommandStore) Store(ctx context.Context, cmd command.NormalizedCommand, token string) error {
	data, err := json.Marshal(Envelope{
		Header: EnvelopeHeader{Authorization: token},
		Body:   cmd,
	})
	if err != nil {
		return fmt.Errorf("%w: encode envelope: %v", ErrStorageUnavailable, err)
	}
	if err := s.objects.Put(ctx, CommandKey(cmd.DeviceID), data); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Latest reads back the last command stored for deviceID.
func (s *CommandStore) Latest(ctx context.Context, deviceID string) (Envelope, error) {
	data, err := s.objects.Get(ctx, CommandKey(deviceID))
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Fanout stores to every sink and joins their errors.
type Fanout []CommandSink

// Store implements CommandSink.
func (f Fanout) Store(ctx context.Context, cmd command.NormalizedCommand, token string) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Store(ctx, cmd, token); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	err := errors.Join(errs...)
	if !errors.Is(err, ErrStorageUnavailable) {
		err = fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return err
}
