// file: pkg/report/store.go

package report

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"k8s.io/klog/v2"
)

var (
	// _metadataBucketKey 存放 store 的元数据
	_metadataBucketKey = []byte("_metadata")
	// _recordsBucketKey 存放所有记录，key 是大端序的 sequence
	_recordsBucketKey = []byte("records")
	// _sequenceKey 是全局 sequence 的 key
	_sequenceKey = []byte("sequence")
)

// 编译时检查
var _ Reporter = &Store{}

// ListOptions 用于过滤历史记录。
type ListOptions struct {
	Namespace string
	Release   string
	// Limit 为 0 表示不限制
	Limit int
}

func (o ListOptions) matches(rec Record) bool {
	if o.Namespace != "" && rec.Namespace != o.Namespace {
		return false
	}
	if o.Release != "" && rec.Release != o.Release {
		return false
	}
	return true
}

// watchBuffer 是每个 watcher 的缓冲大小，满了之后新记录会被丢弃
const watchBuffer = 64

// Store 用 bbolt 保存已完成的标签写入历史，并把新记录推送给 Watch 的调用方。
type Store struct {
	db *bolt.DB

	watchLock sync.Mutex
	watchers  map[*watcher]struct{}
	closed    bool
	done      chan struct{}
}

// watcher 只接收符合 opts 的记录。
type watcher struct {
	opts ListOptions
	ch   chan Record
}

// Open 打开 (或创建) path 处的历史数据库。
func Open(path string, readOnly bool) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", path, err)
	}
	if readOnly {
		return newStore(db), nil
	}
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore 使用一个已经打开的 bbolt 数据库实例。
func NewStore(db *bolt.DB) (*Store, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(_metadataBucketKey); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(_recordsBucketKey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history buckets: %w", err)
	}
	return newStore(db), nil
}

func newStore(db *bolt.DB) *Store {
	return &Store{
		db:       db,
		watchers: make(map[*watcher]struct{}),
		done:     make(chan struct{}),
	}
}

// Close 关闭数据库，并关闭所有 Watch 返回的 channel。
func (s *Store) Close() error {
	s.watchLock.Lock()
	if !s.closed {
		s.closed = true
		for w := range s.watchers {
			close(w.ch)
			delete(s.watchers, w)
		}
		close(s.done)
	}
	s.watchLock.Unlock()
	return s.db.Close()
}

// Report 只持久化已完成的写入 (Succeeded / Failed)，Started 只用于展示。
func (s *Store) Report(rec Record) {
	if rec.Outcome == Started {
		return
	}
	if _, err := s.Append(rec); err != nil {
		klog.Warningf("Failed to record %s: %v", rec.Message("label"), err)
	}
}

// Append 在一个事务中分配 sequence 并写入记录，成功后推送给 watcher。
func (s *Store) Append(rec Record) (Record, error) {
	err := s.db.Update(func(tx *bolt.Tx) error {
		seq, err := getAndIncrementSequence(tx.Bucket(_metadataBucketKey))
		if err != nil {
			return err
		}
		rec.Sequence = seq

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		return tx.Bucket(_recordsBucketKey).Put(sequenceKey(seq), data)
	})
	if err != nil {
		return Record{}, err
	}

	s.notify(rec)
	return rec, nil
}

// List 返回符合条件的记录，最新的在前。
func (s *Store) List(opts ListOptions) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(_recordsBucketKey)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				klog.Warningf("Skipping corrupt history record %x: %v", k, err)
				continue
			}
			if !opts.matches(rec) {
				continue
			}
			out = append(out, rec)
			if opts.Limit > 0 && len(out) >= opts.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// Prune 只保留最新的 keep 条记录，返回删除的条数。
func (s *Store) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(_recordsBucketKey)

		// 先收集 key 再删除，bbolt 的 cursor 在删除后会跳过下一个元素
		var keys [][]byte
		_ = b.ForEach(func(k, _ []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		})
		excess := len(keys) - keep
		for i := 0; i < excess; i++ {
			if err := b.Delete(keys[i]); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// Watch 按写入顺序推送之后追加的、符合 opts 过滤条件的记录，opts.Limit 不起作用。
// ctx 结束或 Store 关闭时返回的 channel 会被关闭。
func (s *Store) Watch(ctx context.Context, opts ListOptions) <-chan Record {
	w := &watcher{opts: opts, ch: make(chan Record, watchBuffer)}

	s.watchLock.Lock()
	if s.closed {
		s.watchLock.Unlock()
		close(w.ch)
		return w.ch
	}
	s.watchers[w] = struct{}{}
	s.watchLock.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.unwatch(w)
	}()
	return w.ch
}

func (s *Store) unwatch(w *watcher) {
	s.watchLock.Lock()
	defer s.watchLock.Unlock()
	if _, ok := s.watchers[w]; ok {
		delete(s.watchers, w)
		close(w.ch)
	}
}

func (s *Store) notify(rec Record) {
	s.watchLock.Lock()
	defer s.watchLock.Unlock()

	for w := range s.watchers {
		if !w.opts.matches(rec) {
			continue
		}
		select {
		case w.ch <- rec:
		default:
			// 数据库里仍然有完整历史
			klog.V(2).Infof("History watcher is full, dropping record %d", rec.Sequence)
		}
	}
}

// getAndIncrementSequence 是一个在事务内部调用的辅助函数。
// bbolt 同一时间只允许一个写事务，所以读取和递增是原子的。
func getAndIncrementSequence(metaBucket *bolt.Bucket) (uint64, error) {
	var current uint64
	if raw := metaBucket.Get(_sequenceKey); raw != nil {
		current = binary.BigEndian.Uint64(raw)
	}

	next := current + 1
	if err := metaBucket.Put(_sequenceKey, sequenceKey(next)); err != nil {
		return 0, err
	}
	return next, nil
}

func sequenceKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
