// Package exit is the trade drop-copy outbox: every executed trade is
// written here before the broadcaster publishes it, and its delivery state
// survives a restart.
package exit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("exit: record not found")
	ErrCorrupt  = errors.New("exit: payload checksum mismatch")
)

// -------------------- State --------------------

type ExitState uint8

const (
	StateNew ExitState = iota
	StateSent
	StateAcked
	StateFailed
)

func (s ExitState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

type ExitRecord struct {
	State       ExitState
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

const headerLen = 1 + 4 + 8 + 4

// binary encoding: [state:1][retries:4][lastAttempt:8][crc:4][payload]
// crc covers the payload only, so state updates never recompute it.
func encodeRecord(r ExitRecord) []byte {
	buf := make([]byte, headerLen+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	binary.BigEndian.PutUint32(buf[13:17], crc32.ChecksumIEEE(r.Payload))
	copy(buf[headerLen:], r.Payload)
	return buf
}

func decodeRecord(b []byte) (ExitRecord, error) {
	if len(b) < headerLen {
		return ExitRecord{}, errors.Errorf("exit: record too short (%d bytes)", len(b))
	}
	payload := b[headerLen:]
	if crc32.ChecksumIEEE(payload) != binary.BigEndian.Uint32(b[13:17]) {
		return ExitRecord{}, ErrCorrupt
	}
	return ExitRecord{
		State:       ExitState(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     bytes.Clone(payload),
	}, nil
}

// -------------------- WAL --------------------

type ExitWAL struct {
	db  *pebble.DB
	log *zap.Logger

	onCorrupt func(seq uint64, err error)

	mu      sync.Mutex
	lastSeq uint64
}

type Option func(*ExitWAL)

// WithLogger routes both the outbox and pebble's own messages to l.
func WithLogger(l *zap.Logger) Option {
	return func(w *ExitWAL) {
		w.log = l
	}
}

// WithCorruptHook is called for every record the scan quarantines.
func WithCorruptHook(fn func(seq uint64, err error)) Option {
	return func(w *ExitWAL) {
		w.onCorrupt = fn
	}
}

func Open(dir string, opts ...Option) (*ExitWAL, error) {
	w := &ExitWAL{
		log:       zap.NewNop(),
		onCorrupt: func(uint64, error) {},
	}
	for _, opt := range opts {
		opt(w)
	}

	db, err := pebble.Open(dir, &pebble.Options{Logger: w.log.Sugar()})
	if err != nil {
		return nil, errors.Wrapf(err, "exit: open %s", dir)
	}
	w.db = db

	if w.lastSeq, err = w.loadLastSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

func (w *ExitWAL) Close() error {
	return w.db.Close()
}

// -------------------- API --------------------

// PutNew stores a trade event awaiting publication and raises the
// sequence high-water mark in the same batch.
func (w *ExitWAL) PutNew(seq uint64, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	batch := w.db.NewBatch()
	defer batch.Close()

	rec := ExitRecord{State: StateNew, Payload: payload}
	if err := batch.Set(keyFor(seq), encodeRecord(rec), nil); err != nil {
		return err
	}
	last := max(w.lastSeq, seq)
	if err := batch.Set([]byte(lastSeqKey), binary.BigEndian.AppendUint64(nil, last), nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return errors.Wrapf(err, "exit: put seq %d", seq)
	}
	w.lastSeq = last
	return nil
}

// LastSeq is the highest sequence ever stored, including records that
// were since purged or quarantined. Sequence numbering resumes after it.
func (w *ExitWAL) LastSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.lastSeq
}

// UpdateState records a delivery attempt outcome, keeping the payload.
func (w *ExitWAL) UpdateState(seq uint64, state ExitState, retries uint32) error {
	rec, err := w.Get(seq)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return w.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

func (w *ExitWAL) Delete(seq uint64) error {
	return w.db.Delete(keyFor(seq), pebble.Sync)
}

func (w *ExitWAL) Get(seq uint64) (ExitRecord, error) {
	val, closer, err := w.db.Get(keyFor(seq))
	if errors.Is(err, pebble.ErrNotFound) {
		return ExitRecord{}, errors.Wrapf(ErrNotFound, "seq %d", seq)
	}
	if err != nil {
		return ExitRecord{}, err
	}
	defer closer.Close()

	return decodeRecord(val)
}

// -------------------- Scan --------------------

// ScanByState visits records in state in sequence order. A record that
// cannot be decoded is moved aside and skipped.
func (w *ExitWAL) ScanByState(
	state ExitState,
	fn func(seq uint64, rec ExitRecord) error,
) error {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err == nil {
			var rec ExitRecord
			if rec, err = decodeRecord(iter.Value()); err == nil {
				if rec.State != state {
					continue
				}
				if err := fn(seq, rec); err != nil {
					return err
				}
				continue
			}
		}
		if qerr := w.quarantine(iter.Key(), iter.Value(), seq, err); qerr != nil {
			return qerr
		}
	}
	return iter.Error()
}

// quarantine moves an undecodable record under corruptPrefix so that scans
// keep making progress past it.
func (w *ExitWAL) quarantine(key, val []byte, seq uint64, cause error) error {
	batch := w.db.NewBatch()
	defer batch.Close()

	dst := append([]byte(corruptPrefix), bytes.TrimPrefix(key, []byte(keyPrefix))...)
	if err := batch.Set(dst, val, nil); err != nil {
		return err
	}
	if err := batch.Delete(key, nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return errors.Wrapf(err, "exit: quarantine %s", key)
	}

	w.log.Error("exit: quarantined corrupt record",
		zap.ByteString("key", key),
		zap.Int("bytes", len(val)),
		zap.Error(cause),
	)
	w.onCorrupt(seq, cause)
	return nil
}

// Quarantined lists the sequence numbers moved aside by quarantine.
func (w *ExitWAL) Quarantined() ([]uint64, error) {
	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(corruptPrefix),
		UpperBound: []byte(corruptPrefix + "~"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var seqs []uint64
	for iter.First(); iter.Valid(); iter.Next() {
		var seq uint64
		if _, err := fmt.Sscanf(string(bytes.TrimPrefix(iter.Key(), []byte(corruptPrefix))), "%d", &seq); err == nil {
			seqs = append(seqs, seq)
		}
	}
	return seqs, iter.Error()
}

// Requeue moves every SENT record back to NEW. A record is left SENT only if
// the process stopped between publishing and acknowledging it.
func (w *ExitWAL) Requeue() (int, error) {
	var seqs []uint64
	err := w.ScanByState(StateSent, func(seq uint64, _ ExitRecord) error {
		seqs = append(seqs, seq)
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, seq := range seqs {
		rec, err := w.Get(seq)
		if err != nil {
			return 0, err
		}
		if err := w.UpdateState(seq, StateNew, rec.Retries); err != nil {
			return 0, err
		}
	}
	return len(seqs), nil
}

// PurgeAcked deletes acknowledged records in one batch.
func (w *ExitWAL) PurgeAcked() (int, error) {
	batch := w.db.NewBatch()
	defer batch.Close()

	n := 0
	err := w.ScanByState(StateAcked, func(seq uint64, _ ExitRecord) error {
		n++
		return batch.Delete(keyFor(seq), nil)
	})
	if err != nil || n == 0 {
		return 0, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return n, nil
}

// -------------------- Helpers --------------------

const (
	keyPrefix     = "trade/"
	corruptPrefix = "corrupt/"
	lastSeqKey    = "meta/last_seq"
)

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte(keyPrefix))), "%d", &seq)
	return seq, err
}

// loadLastSeq reads the high-water mark, falling back to the highest trade
// key for outboxes written before the mark existed.
func (w *ExitWAL) loadLastSeq() (uint64, error) {
	val, closer, err := w.db.Get([]byte(lastSeqKey))
	if err == nil {
		defer closer.Close()
		if len(val) != 8 {
			return 0, errors.Errorf("exit: bad %s (%d bytes)", lastSeqKey, len(val))
		}
		return binary.BigEndian.Uint64(val), nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return 0, errors.Wrapf(err, "exit: read %s", lastSeqKey)
	}

	iter, err := w.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}
