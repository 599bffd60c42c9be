// Package badgerstore implements an embedded badger-backed packet archive.
//
// For headless benchmark runs it is often preferable to archive outputs into
// a single embedded store instead of spraying one file per packet across a
// directory. Packets are keyed by big-endian index so iteration order equals
// packet order; the value carries a fixed shape header followed by the raw
// payload.
package badgerstore

import (
	"encoding/binary"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/framefeed/internal/logger"
	"github.com/marmos91/framefeed/pkg/packet"
	"github.com/marmos91/framefeed/pkg/writer"
)

// headerSize is the fixed shape header length: four uint32 fields (width,
// height, channels, element size).
const headerSize = 16

// Store is a badger-backed packet archive. Safe for concurrent use.
type Store struct {
	db *badgerdb.DB
}

// Open creates or opens the store at the given directory.
func Open(dir string) (*Store, error) {
	opts := badgerdb.DefaultOptions(dir).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %s: %w", dir, err)
	}
	logger.Debug("Opened badger packet store", "path", dir)
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// key returns the big-endian key for a packet index.
func key(idx uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], idx)
	return k[:]
}

// encode serialises a packet as shape header plus payload.
func encode(pkt packet.Packet) []byte {
	buf := make([]byte, headerSize+len(pkt.Data))
	binary.BigEndian.PutUint32(buf[0:4], uint32(pkt.Shape.Width))
	binary.BigEndian.PutUint32(buf[4:8], uint32(pkt.Shape.Height))
	binary.BigEndian.PutUint32(buf[8:12], uint32(pkt.Shape.Channels))
	binary.BigEndian.PutUint32(buf[12:16], uint32(pkt.Shape.ElemSize))
	copy(buf[headerSize:], pkt.Data)
	return buf
}

// decode parses a stored value back into a packet. The packet owns its
// payload.
func decode(val []byte) (packet.Packet, error) {
	if len(val) < headerSize {
		return packet.Empty(), fmt.Errorf("badgerstore: value is %d bytes, header needs %d",
			len(val), headerSize)
	}
	shape := packet.Shape{
		Width:    int(binary.BigEndian.Uint32(val[0:4])),
		Height:   int(binary.BigEndian.Uint32(val[4:8])),
		Channels: int(binary.BigEndian.Uint32(val[8:12])),
		ElemSize: int(binary.BigEndian.Uint32(val[12:16])),
	}
	data := make([]byte, len(val)-headerSize)
	copy(data, val[headerSize:])
	return packet.Packet{Data: data, Shape: shape}, nil
}

// Save persists one packet, overwriting any earlier packet at the same
// index. It returns the number of payload bytes stored.
func (s *Store) Save(pkt packet.Packet, idx uint64) (uint64, error) {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key(idx), encode(pkt))
	})
	if err != nil {
		return 0, fmt.Errorf("badgerstore: save %d: %w", idx, err)
	}
	return uint64(pkt.Len()), nil
}

// Load reads a packet back. Missing indices yield an empty packet.
func (s *Store) Load(idx uint64) (packet.Packet, error) {
	var pkt packet.Packet
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key(idx))
		if err == badgerdb.ErrKeyNotFound {
			pkt = packet.Empty()
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			p, err := decode(val)
			if err != nil {
				return err
			}
			pkt = p
			return nil
		})
	})
	if err != nil {
		return packet.Empty(), fmt.Errorf("badgerstore: load %d: %w", idx, err)
	}
	return pkt, nil
}

// Count returns the number of archived packets.
func (s *Store) Count() (uint64, error) {
	var count uint64
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badgerstore: count: %w", err)
	}
	return count, nil
}

// Sink adapts the store to a writer.SinkFunc.
func (s *Store) Sink() writer.SinkFunc {
	return s.Save
}
