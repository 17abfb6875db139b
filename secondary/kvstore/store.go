// Copyright 2014-Present Couchbase, Inc.
//
// Use of this software is governed by the Business Source License included
// in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
// in that file, in accordance with the Business Source License, use of this
// software will be governed by the Apache License, Version 2.0, included in
// the file licenses/APL2.txt.

package kvstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/panjf2000/ants/v2"

	"github.com/couchbase/scanmerge/secondary/common"
	"github.com/couchbase/scanmerge/secondary/logging"
	"github.com/couchbase/scanmerge/secondary/rowcodec"
)

var (
	ErrTableExists   = errors.New("kvstore.tableExists")
	ErrTableNotFound = errors.New("kvstore.tableNotFound")
	ErrInvalidTable  = errors.New("kvstore.invalidTable")
	ErrFetchInFlight = errors.New("kvstore.fetchInFlight")
	ErrHandleClosed  = errors.New("kvstore.handleClosed")
)

const metaPrefix = "\x00meta\x00"

// Store keeps tables in badger, hash partitioned on the primary key. Every
// partition of a table is a contiguous key range
//
//	table 0x00 partition(uint16 BE) primary-key
//
// so a prefix iteration yields the partition in primary key order.
type Store struct {
	db         *badger.DB
	partitions common.PartitionContainer
	compress   bool
	maxElapsed time.Duration
	pool       *ants.Pool

	mu     sync.RWMutex
	tables map[string]*rowcodec.Codec
}

// Open opens the store in dir, or in memory when kvstore.inMemory is set.
// A nil config means SystemConfig.
func Open(dir string, config common.Config) (*Store, error) {
	if config == nil {
		config = common.SystemConfig
	}
	config = config.SectionConfig("kvstore.", true)

	opts := badger.DefaultOptions(dir)
	if config["inMemory"].Bool() {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(&badgerLogger{log: logging.WithPrefix("badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(config["workerPoolSize"].Int(), ants.WithPanicHandler(func(v any) {
		logging.Errorf("kvstore: fetch panic: %v\n%s", v, logging.StackTrace())
	}))
	if err != nil {
		db.Close()
		return nil, err
	}

	compression := config["compression"].String()
	s := &Store{
		db:         db,
		partitions: common.NewHashPartitionContainer(config["partitions"].Int(), xxhash.Sum64),
		compress:   compression == "snappy",
		maxElapsed: config["retry.maxElapsed"].Duration(),
		pool:       pool,
		tables:     make(map[string]*rowcodec.Codec),
	}
	logging.Infof("kvstore: opened %q partitions %v compression %v",
		dir, s.partitions.GetNumPartitions(), compression)
	return s, nil
}

func (s *Store) Partitions() common.PartitionContainer {
	return s.partitions
}

// CreateTable registers schema under name. The schema is persisted with
// the data.
func (s *Store) CreateTable(name string, schema *rowcodec.Schema) error {
	if name == "" || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	data, err := json.Marshal(schema.Columns)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(metaPrefix + name)); err == nil {
			return fmt.Errorf("%w: %q", ErrTableExists, name)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set([]byte(metaPrefix+name), data)
	})
	if err != nil {
		return err
	}
	s.tables[name] = rowcodec.NewCodec(schema, s.compress)
	return nil
}

// Table returns the codec of a table, loading its schema when needed.
func (s *Store) Table(name string) (*rowcodec.Codec, error) {
	s.mu.RLock()
	codec, ok := s.tables[name]
	s.mu.RUnlock()
	if ok {
		return codec, nil
	}

	var columns []rowcodec.Column
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaPrefix + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %q", ErrTableNotFound, name)
		} else if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &columns)
		})
	})
	if err != nil {
		return nil, err
	}
	schema, err := rowcodec.NewSchema(columns...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if codec, ok := s.tables[name]; ok {
		return codec, nil
	}
	codec = rowcodec.NewCodec(schema, s.compress)
	s.tables[name] = codec
	return codec, nil
}

// Put writes rows to table, replacing rows with the same primary key.
func (s *Store) Put(table string, rows ...map[string]interface{}) error {
	codec, err := s.Table(table)
	if err != nil {
		return err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, row := range rows {
		key, doc, err := codec.EncodeRow(row)
		if err != nil {
			return err
		}
		partn := s.partitions.GetPartitionIdByPartitionKey(common.PartitionKey(key))
		if err := wb.Set(rowKey(table, partn, key), doc); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Count returns the number of stored rows of table per partition.
func (s *Store) Count(table string) (map[common.PartitionId]int, error) {
	counts := make(map[common.PartitionId]int)
	err := s.db.View(func(txn *badger.Txn) error {
		for _, partn := range s.partitions.GetAllPartitionIds() {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			prefix := partitionPrefix(table, partn)
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				counts[partn]++
			}
			it.Close()
		}
		return nil
	})
	return counts, err
}

func (s *Store) Close() error {
	if err := s.pool.ReleaseTimeout(5 * time.Second); err != nil {
		logging.Warnf("kvstore: releasing fetch pool: %v", err)
	}
	return s.db.Close()
}

func partitionPrefix(table string, partn common.PartitionId) []byte {
	prefix := make([]byte, 0, len(table)+3)
	prefix = append(prefix, table...)
	prefix = append(prefix, 0)
	return binary.BigEndian.AppendUint16(prefix, uint16(partn))
}

func rowKey(table string, partn common.PartitionId, key []byte) []byte {
	return append(partitionPrefix(table, partn), key...)
}
