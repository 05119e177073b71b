package boot

import (
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
)

var swapStateKey = []byte("boot/swap_state")

// swap state record: [VERSION(1)][MODE(1)][FLAGS(1)][REQUESTED_AT(8)]
const (
	swapStateVersion = 1
	swapStateSize    = 11

	flagPending   = 1 << 0
	flagConfirmed = 1 << 1
)

// SwapState is what the bootloader reads at boot to decide which image to run.
type SwapState struct {
	// Pending is set when a staged image is waiting to be booted
	Pending bool

	// Mode is the requested upgrade mode (valid when Pending)
	Mode UpgradeMode

	// Confirmed is set once the running image has confirmed itself
	Confirmed bool

	// RequestedAt is when the upgrade was requested
	RequestedAt time.Time
}

// Store persists the swap state of a simulated bootloader in badger. It
// implements Requester.
type Store struct {
	db *badger.DB
}

// StoreOption configures a Store.
type StoreOption func(*badger.Options)

// WithStoreLogger routes badger's internal logging to logger.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(o *badger.Options) {
		*o = o.WithLogger(newBadgerLogger(logger))
	}
}

// OpenStore opens (or creates) a store in dir.
func OpenStore(dir string, opts ...StoreOption) (*Store, error) {
	return openStore(badger.DefaultOptions(dir), opts)
}

// OpenInMemoryStore opens a store that lives only for the life of the process.
func OpenInMemoryStore(opts ...StoreOption) (*Store, error) {
	return openStore(badger.DefaultOptions("").WithInMemory(true), opts)
}

func openStore(o badger.Options, opts []StoreOption) (*Store, error) {
	o = o.WithLogger(nil)
	for _, opt := range opts {
		opt(&o)
	}
	db, err := badger.Open(o)
	if err != nil {
		return nil, errors.Wrap(err, "open boot store")
	}
	return &Store{db: db}, nil
}

// RequestUpgrade marks the staged image as pending in the given mode. The
// staged image starts unconfirmed.
func (s *Store) RequestUpgrade(mode UpgradeMode) error {
	return s.update(func(st *SwapState) {
		st.Pending = true
		st.Mode = mode
		st.Confirmed = false
		st.RequestedAt = time.Now()
	})
}

// ConfirmImage marks the running image as good, so a test upgrade is kept.
func (s *Store) ConfirmImage() error {
	return s.update(func(st *SwapState) {
		st.Confirmed = true
	})
}

// State returns the stored swap state. A store that has never been written
// returns the zero state.
func (s *Store) State() (SwapState, error) {
	var st SwapState
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		st, err = readState(txn)
		return err
	})
	return st, err
}

// ConsumePending returns the swap state as the bootloader sees it at boot and
// clears the pending flag, so the request is acted on once.
func (s *Store) ConsumePending() (SwapState, error) {
	var seen SwapState
	err := s.db.Update(func(txn *badger.Txn) error {
		st, err := readState(txn)
		if err != nil {
			return err
		}
		seen = st
		if !st.Pending {
			return nil
		}
		st.Pending = false
		return writeState(txn, st)
	})
	return seen, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "close boot store")
}

func (s *Store) update(fn func(*SwapState)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		st, err := readState(txn)
		if err != nil {
			return err
		}
		fn(&st)
		return writeState(txn, st)
	})
}

func readState(txn *badger.Txn) (SwapState, error) {
	item, err := txn.Get(swapStateKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return SwapState{}, nil
	}
	if err != nil {
		return SwapState{}, errors.Wrap(err, "read swap state")
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return SwapState{}, errors.Wrap(err, "copy swap state")
	}
	return decodeState(raw)
}

func writeState(txn *badger.Txn, st SwapState) error {
	return errors.Wrap(txn.Set(swapStateKey, encodeState(st)), "write swap state")
}

func encodeState(st SwapState) []byte {
	buf := make([]byte, swapStateSize)
	buf[0] = swapStateVersion
	buf[1] = byte(st.Mode)
	if st.Pending {
		buf[2] |= flagPending
	}
	if st.Confirmed {
		buf[2] |= flagConfirmed
	}
	var ts int64
	if !st.RequestedAt.IsZero() {
		ts = st.RequestedAt.UnixNano()
	}
	binary.LittleEndian.PutUint64(buf[3:11], uint64(ts))
	return buf
}

func decodeState(raw []byte) (SwapState, error) {
	if len(raw) != swapStateSize {
		return SwapState{}, errors.Errorf("swap state: got %d bytes, expected %d", len(raw), swapStateSize)
	}
	if raw[0] != swapStateVersion {
		return SwapState{}, errors.Errorf("swap state: unsupported version %d", raw[0])
	}
	st := SwapState{
		Mode:      UpgradeMode(raw[1]),
		Pending:   raw[2]&flagPending != 0,
		Confirmed: raw[2]&flagConfirmed != 0,
	}
	if ts := int64(binary.LittleEndian.Uint64(raw[3:11])); ts != 0 {
		st.RequestedAt = time.Unix(0, ts)
	}
	return st, nil
}
