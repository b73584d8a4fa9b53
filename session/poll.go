package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/dotside-studios/cgm-agent/sensor"
)

// Connect opens the radio link to the scanned sensor. Only one connect runs
// at a time; an overlapping call fails with ErrConnectInFlight.
func (s *Session) Connect(ctx context.Context) error {
	if s.radio == nil {
		return fmt.Errorf("connect: no radio transport configured")
	}
	if !s.connectMu.TryLock() {
		return ErrConnectInFlight
	}
	defer s.connectMu.Unlock()

	ctx, life, cancel := s.bind(ctx)
	defer cancel()

	s.mu.RLock()
	hasKeys := s.sc.HasKeys()
	prev := s.sc.Handle
	s.mu.RUnlock()

	if !hasKeys {
		return s.fail("connect", sensor.Errorf(sensor.ErrCodeKeysUnavailable, "Connect", "scan the sensor first"))
	}
	if prev != nil {
		return nil
	}

	handle, err := s.radio.Connect(ctx, s.opts.ServiceID, s.opts.CharacteristicID)
	if err != nil {
		if ctx.Err() != nil {
			return s.fail("connect", cancelled(ctx))
		}
		return s.fail("connect", sensor.NewTransportError("Connect", err))
	}

	var existing bool
	err = s.commit(life, func() {
		if s.sc.Handle != nil {
			existing = true
			return
		}
		s.sc.Handle = handle
		s.state = StateConnected
	})
	if err != nil || existing {
		s.release(handle)
		if err != nil {
			return s.fail("connect", err)
		}
		return nil
	}

	s.logger.Info("radio link connected", "peer", handle.Address())
	s.emit(Update{Kind: UpdateStatus})
	return nil
}

// release closes a radio handle the session no longer tracks.
func (s *Session) release(h RadioHandle) error {
	if err := s.radio.Disconnect(h); err != nil {
		err = sensor.NewTransportError("Disconnect", err)
		s.logger.Warn("radio disconnect failed", "peer", h.Address(), "error", err)
		return err
	}
	return nil
}

// Poll reads, decrypts and decodes one radio payload and merges it into the
// reading window. It returns the decoded readings. Only one poll runs at a
// time; an overlapping call fails with ErrPollInFlight.
func (s *Session) Poll(ctx context.Context) ([]sensor.GlucoseReading, error) {
	if !s.pollMu.TryLock() {
		return nil, ErrPollInFlight
	}
	defer s.pollMu.Unlock()

	ctx, life, cancel := s.bind(ctx)
	defer cancel()

	s.mu.RLock()
	sc := s.sc
	var keys sensor.KeyPair
	if sc.Keys != nil {
		keys = *sc.Keys
	}
	s.mu.RUnlock()
	defer keys.Zero()

	if !sc.HasKeys() {
		return nil, s.fail("poll", sensor.Errorf(sensor.ErrCodeKeysUnavailable, "Poll", "scan the sensor first"))
	}
	if sc.Handle == nil || s.radio == nil {
		return nil, s.fail("poll", ErrNotConnected)
	}

	readings, err := s.poll(ctx, sc.Handle, keys)
	if err != nil {
		return nil, s.fail("poll", err)
	}

	now := s.opts.Clock.Now()
	err = s.commit(life, func() {
		s.sc.Window = sensor.Merge(s.sc.Window, readings, now)
		s.sc.LastPoll = now
		if s.state == StateConnected {
			s.state = StatePolling
		}
	})
	if err != nil {
		return nil, s.fail("poll", err)
	}

	s.logger.Debug("poll complete", "readings", len(readings))
	s.emit(Update{Kind: UpdateReadings, Readings: readings})
	return readings, nil
}

// poll is the radio sequence as a step.
func (s *Session) poll(ctx context.Context, h RadioHandle, keys sensor.KeyPair) ([]sensor.GlucoseReading, error) {
	raw, err := s.radio.ReadCharacteristic(ctx, h)
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		return nil, sensor.NewTransportError("ReadCharacteristic", err)
	}

	plain, err := sensor.Decrypt(normalizePayload(raw), keys.Decryption[:])
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}
	return s.decoder.DecodeRadioPayload(plain), nil
}

// normalizePayload returns raw decoded from base64 when it is a base64
// rendering of whole cipher blocks, and raw unchanged otherwise.
func normalizePayload(raw []byte) []byte {
	text := bytes.TrimSpace(raw)
	if len(text) == 0 || len(text)%4 != 0 {
		return raw
	}
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(decoded, text)
	if err != nil || n == 0 || n%sensor.BlockSize != 0 {
		return raw
	}
	return decoded[:n]
}

// Run polls on every tick of the configured interval until ctx ends or the
// session is disconnected. A tick that fires while a poll is still running
// is skipped. Poll failures are reported on Updates and do not stop the
// loop.
func (s *Session) Run(ctx context.Context) error {
	ctx, _, cancel := s.bind(ctx)
	defer cancel()

	s.mu.Lock()
	if s.sc.Handle == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.state = StatePolling
	s.mu.Unlock()

	ticker := s.opts.Clock.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	s.logger.Info("poll loop started", "interval", s.opts.PollInterval)
	defer s.logger.Info("poll loop stopped")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return cancelled(ctx)
		case <-ticker.C():
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Poll(ctx); errors.Is(err, ErrPollInFlight) {
					s.logger.Debug("previous poll still running, skipping tick")
				}
			}()
		}
	}
}
