package session

import (
	"context"
	"fmt"
	"time"

	"github.com/dotside-studios/cgm-agent/sensor"
)

// identifierResponseLen is a get-identifier response that still carries
// the block status prefix.
const identifierResponseLen = sensor.BlockStatusLen + sensor.IdentifierLen

// Scan runs the tag sequence: activate, read the identifier, derive keys,
// read every memory block in order and decode them. The session is updated
// only if every step succeeds.
func (s *Session) Scan(ctx context.Context) (sensor.SensorInfo, error) {
	if s.tag == nil {
		return sensor.SensorInfo{}, fmt.Errorf("scan: no tag transport configured")
	}
	if !s.scanMu.TryLock() {
		return sensor.SensorInfo{}, ErrScanInFlight
	}
	defer s.scanMu.Unlock()

	ctx, life, cancel := s.bind(ctx)
	defer cancel()

	s.mu.RLock()
	prev := s.sc
	s.mu.RUnlock()

	next, err := s.scan(ctx, prev)
	if err != nil {
		return sensor.SensorInfo{}, s.fail("scan", err)
	}

	var stale RadioHandle
	var replaced sensor.DeviceIdentifier
	err = s.commit(life, func() {
		if s.sc.Keys != nil && s.sc.Keys != next.Keys {
			s.sc.Keys.Zero()
		}
		window := next.Window
		if s.sc.Info != nil && s.sc.Identifier != next.Identifier {
			// A different sensor: nothing of the old device session carries over.
			replaced = s.sc.Identifier
			stale = s.sc.Handle
			s.sc.Handle = nil
			s.sc.LastPoll = time.Time{}
			window = sensor.Merge(nil, next.Info.HistoricalReadings, next.LastScan)
			s.lifeCancel()
			s.life, s.lifeCancel = context.WithCancel(context.Background())
			s.state = StateTagScanned
		}
		s.sc.Identifier = next.Identifier
		s.sc.Keys = next.Keys
		s.sc.Info = next.Info
		s.sc.Window = window
		s.sc.LastScan = next.LastScan
		if s.state == StateUninitialized || s.state == StateDisconnected {
			s.state = StateTagScanned
		}
	})
	if err != nil {
		next.Keys.Zero()
		return sensor.SensorInfo{}, s.fail("scan", err)
	}
	if replaced != (sensor.DeviceIdentifier{}) {
		s.logger.Info("sensor replaced, previous session dropped",
			"previous", replaced.String(),
			"current", next.Identifier.String(),
		)
	}
	if stale != nil && s.radio != nil {
		s.release(stale)
	}

	s.logger.Info("sensor scanned",
		"serial", next.Info.SerialNumber,
		"state", next.Info.State,
		"glucose", next.Info.CurrentGlucose,
		"trend", next.Info.Trend,
		"age", next.Info.Age.String(),
	)
	s.emit(Update{Kind: UpdateSensorInfo, Info: next.Info, Readings: next.Info.HistoricalReadings})
	return *next.Info, nil
}

// scan is the tag sequence as a step over an explicit Context.
func (s *Session) scan(ctx context.Context, sc Context) (Context, error) {
	if _, err := s.transceive(ctx, "Activate", sensor.ActivateCommand()); err != nil {
		return sc, err
	}

	resp, err := s.transceive(ctx, "GetIdentifier", sensor.GetIdentifierCommand())
	if err != nil {
		return sc, err
	}
	id, err := parseIdentifierResponse(resp)
	if err != nil {
		return sc, err
	}

	keys, err := s.opts.Deriver.DeriveKeys(id[:])
	if err != nil {
		return sc, err
	}

	blocks := make([]sensor.RawBlock, 0, s.opts.BlockCount)
	for b := 0; b < s.opts.BlockCount; b++ {
		resp, err := s.transceive(ctx, "ReadBlock", sensor.ReadBlockCommand(uint8(b)))
		if err != nil {
			keys.Zero()
			return sc, fmt.Errorf("block %d: %w", b, err)
		}
		blocks = append(blocks, sensor.RawBlock(resp))
	}

	info := s.decoder.DecodeTagMemory(sensor.AssembleBlocks(blocks))
	now := s.opts.Clock.Now()

	sc.Identifier = id
	sc.Keys = &keys
	sc.Info = &info
	sc.Window = sensor.Merge(sc.Window, info.HistoricalReadings, now)
	sc.LastScan = now
	return sc, nil
}

// transceive sends one frame, checking for cancellation first.
func (s *Session) transceive(ctx context.Context, op string, cmd sensor.Command) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}
	resp, err := s.tag.Transceive(ctx, cmd.Bytes())
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		return nil, sensor.NewTransportError(op, err)
	}
	return resp, nil
}

// parseIdentifierResponse accepts the bare 8-byte identifier or one still
// prefixed by the two status bytes.
func parseIdentifierResponse(resp []byte) (sensor.DeviceIdentifier, error) {
	if len(resp) == identifierResponseLen {
		resp = resp[sensor.BlockStatusLen:]
	}
	return sensor.ParseIdentifier(resp)
}
