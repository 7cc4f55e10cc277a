package kv

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/arloliu/creport/errs"
	"github.com/arloliu/creport/report"
)

type headerRecord struct {
	Name      string  `msgpack:"name"`
	StartTime float64 `msgpack:"start"`
	EndTime   float64 `msgpack:"end"`
	Timestep  float64 `msgpack:"dt"`
	DataUnit  string  `msgpack:"data_unit"`
	TimeUnit  string  `msgpack:"time_unit"`
}

func newHeaderRecord(name string, h report.Header) headerRecord {
	return headerRecord{
		Name:      name,
		StartTime: h.StartTime,
		EndTime:   h.EndTime,
		Timestep:  h.Timestep,
		DataUnit:  h.DataUnit,
		TimeUnit:  h.TimeUnit,
	}
}

func (r headerRecord) header() report.Header {
	return report.Header{
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Timestep:  r.Timestep,
		DataUnit:  r.DataUnit,
		TimeUnit:  r.TimeUnit,
	}
}

type gidRecord struct {
	Counts []uint16 `msgpack:"counts"`
}

// getRecord decodes the msgpack value stored at key into v.
// A missing key returns badger.ErrKeyNotFound unchanged.
func getRecord(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}

	return item.Value(func(val []byte) error {
		if err := msgpack.Unmarshal(val, v); err != nil {
			return fmt.Errorf("%w: key %q: %w", errs.ErrCorruptFormat, key, err)
		}

		return nil
	})
}

func setRecord(txn *badger.Txn, key []byte, v any) error {
	val, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}

	return txn.Set(key, val)
}
