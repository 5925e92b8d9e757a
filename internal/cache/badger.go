package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/ytget/twitvid/internal/logger"
	"github.com/ytget/twitvid/types"
)

const keyPrefix = "video:"

var log = logger.WithComponent(logger.ComponentCache)

// BadgerCache persists entries in a badger database so the cache survives
// restarts. Expiry uses badger's per-entry TTL.
type BadgerCache struct {
	db     *badger.DB
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBadgerCache opens (or creates) a badger database in dir. An empty dir
// opens an in-memory database.
func NewBadgerCache(dir string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = badgerLogger{}
	opts.NumVersionsToKeep = 1

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}
	c := &BadgerCache{
		db:     db,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go c.gcLoop(10 * time.Minute)

	log.Info("badger cache opened", logger.Fields{"dir": dir})
	return c, nil
}

// Get retrieves a cached value by key
func (c *BadgerCache) Get(key string) (types.VideoInfo, bool) {
	var v types.VideoInfo
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(b []byte) error {
			return json.Unmarshal(b, &v)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			log.Warn("cache read failed", logger.Fields{"key": key, "error": err})
		}
		return types.VideoInfo{}, false
	}
	return v, true
}

// Set stores a value in the cache
func (c *BadgerCache) Set(key string, value types.VideoInfo, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	b, err := json.Marshal(value)
	if err != nil {
		log.Warn("cache encode failed", logger.Fields{"key": key, "error": err})
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(keyPrefix+key), b).WithTTL(ttl))
	})
	if err != nil {
		log.Warn("cache write failed", logger.Fields{"key": key, "error": err})
	}
}

// Close stops value-log GC and closes the database.
func (c *BadgerCache) Close() error {
	close(c.stopCh)
	<-c.doneCh
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

func (c *BadgerCache) gcLoop(interval time.Duration) {
	defer close(c.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for {
				if err := c.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) && !errors.Is(err, badger.ErrGCInMemoryMode) {
						log.Warn("value log gc failed", logger.Fields{"error": err})
					}
					break
				}
			}
		case <-c.stopCh:
			return
		}
	}
}

// badgerLogger routes badger's own logging into the cache component.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	log.Error(fmt.Sprintf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	log.Warn(fmt.Sprintf(format, args...))
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	log.Debug(fmt.Sprintf(format, args...))
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	log.Trace(fmt.Sprintf(format, args...))
}
