package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"lyrics-sync-go/logcolors"
	"lyrics-sync-go/utils"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const bucketName = "lyrics"

// ErrInvalidBackup is returned for backup names that are not plain .db files
// inside the backup directory.
var ErrInvalidBackup = errors.New("invalid backup file: must be a .db file name")

// Entry is one stored value. Payload is compressed on disk when Compressed
// is set; Get always returns it decompressed.
type Entry struct {
	Source     string    `json:"source"`
	StoredAt   time.Time `json:"storedAt"`
	Compressed bool      `json:"compressed,omitempty"`
	Payload    string    `json:"payload"`
}

// Options configures a Store.
type Options struct {
	Compress bool
	// MaxAge expires entries on read. Zero keeps them forever.
	MaxAge time.Duration
}

// Store keeps reconciled lyrics in BoltDB with an in-memory mirror.
type Store struct {
	mu         sync.RWMutex // guards db across restore
	db         *bolt.DB
	mem        sync.Map // key -> Entry, payload as stored
	dbPath     string
	backupPath string
	opts       Options
	now        func() time.Time
}

// Open opens or creates the database at dbPath and preloads it.
func Open(dbPath, backupPath string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.MkdirAll(backupPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	if info, err := os.Stat(dbPath); err == nil {
		log.Infof("%s Found existing database at %s (%d bytes)", logcolors.LogCacheInit, dbPath, info.Size())
	} else {
		log.Infof("%s Creating new database at %s", logcolors.LogCacheInit, dbPath)
	}

	s := &Store{dbPath: dbPath, backupPath: backupPath, opts: opts, now: time.Now}
	if err := s.open(); err != nil {
		return nil, err
	}

	log.Infof("%s Store ready at %s (compression: %v, max age: %v)", logcolors.LogCache, dbPath, opts.Compress, opts.MaxAge)
	return s, nil
}

func (s *Store) open() error {
	db, err := bolt.Open(s.dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		db.Close()
		return fmt.Errorf("failed to create cache bucket: %w", err)
	}
	s.db = db
	return s.preload()
}

func (s *Store) preload() error {
	s.mem.Range(func(k, _ interface{}) bool {
		s.mem.Delete(k)
		return true
	})

	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				log.Warnf("%s Skipping unreadable entry %s: %v", logcolors.LogCache, string(k), err)
				return nil
			}
			s.mem.Store(string(k), entry)
			count++
			return nil
		})
	})
	if err != nil {
		return err
	}
	log.Infof("%s Loaded %d entries into memory", logcolors.LogCache, count)
	return nil
}

func (s *Store) expired(e Entry) bool {
	return s.opts.MaxAge > 0 && s.now().Sub(e.StoredAt) > s.opts.MaxAge
}

// Get returns the entry under key with its payload decompressed. Expired
// entries are reported as missing.
func (s *Store) Get(key string) (Entry, bool) {
	v, ok := s.mem.Load(key)
	if !ok {
		return Entry{}, false
	}
	entry := v.(Entry)
	if s.expired(entry) {
		return Entry{}, false
	}
	if entry.Compressed {
		payload, err := utils.Unpack(entry.Payload)
		if err != nil {
			log.Errorf("%s Failed to decompress %s: %v", logcolors.LogCache, key, err)
			return Entry{}, false
		}
		entry.Payload = payload
		entry.Compressed = false
	}
	return entry, true
}

// Put stores payload under key.
func (s *Store) Put(key, source, payload string) error {
	entry := Entry{Source: source, StoredAt: s.now(), Payload: payload}
	if s.opts.Compress {
		compressed, err := utils.Pack(payload)
		if err != nil {
			return fmt.Errorf("failed to compress %s: %w", key, err)
		}
		entry.Payload = compressed
		entry.Compressed = true
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), data)
	}); err != nil {
		return err
	}
	s.mem.Store(key, entry)
	return nil
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.mem.Delete(key)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
}

// DeletePrefix removes every key starting with prefix and returns how many
// were removed.
func (s *Store) DeletePrefix(prefix string) (int, error) {
	var keys []string
	s.mem.Range(func(k, _ interface{}) bool {
		if strings.HasPrefix(k.(string), prefix) {
			keys = append(keys, k.(string))
		}
		return true
	})
	for _, k := range keys {
		if err := s.Delete(k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// Prune deletes expired entries.
func (s *Store) Prune() (int, error) {
	var keys []string
	s.mem.Range(func(k, v interface{}) bool {
		if s.expired(v.(Entry)) {
			keys = append(keys, k.(string))
		}
		return true
	})
	for _, k := range keys {
		if err := s.Delete(k); err != nil {
			return 0, err
		}
	}
	if len(keys) > 0 {
		log.Infof("%s Pruned %d expired entries", logcolors.LogCache, len(keys))
	}
	return len(keys), nil
}

// Clear removes every entry.
func (s *Store) Clear() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
	if err != nil {
		return err
	}
	s.mem.Range(func(k, _ interface{}) bool {
		s.mem.Delete(k)
		return true
	})
	return nil
}

// Range calls fn for each entry as stored, payload possibly compressed.
func (s *Store) Range(fn func(key string, entry Entry) bool) {
	s.mem.Range(func(k, v interface{}) bool {
		return fn(k.(string), v.(Entry))
	})
}

// Stats returns the number of keys and their stored size.
func (s *Store) Stats() (numKeys int, sizeInKB int) {
	size := 0
	s.mem.Range(func(k, v interface{}) bool {
		numKeys++
		size += len(k.(string)) + len(v.(Entry).Payload)
		return true
	})
	return numKeys, size / 1024
}

// Backup writes a consistent copy of the database to the backup directory
// and returns its path. Writers are not blocked.
func (s *Store) Backup() (string, error) {
	name := fmt.Sprintf("cache_backup_%s.db", s.now().Format("2006-01-02_15-04-05.000"))
	path := filepath.Join(s.backupPath, name)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(path, 0600)
	}); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	log.Infof("%s Backup written to %s", logcolors.LogCacheBackup, path)
	return path, nil
}

// BackupAndClear backs up, then clears.
func (s *Store) BackupAndClear() (string, error) {
	path, err := s.Backup()
	if err != nil {
		return "", err
	}
	if err := s.Clear(); err != nil {
		return path, fmt.Errorf("backup created but failed to clear cache: %w", err)
	}
	log.Infof("%s Cache cleared (backup: %s)", logcolors.LogCacheClear, path)
	return path, nil
}

// BackupInfo describes one backup file.
type BackupInfo struct {
	FileName  string    `json:"fileName"`
	Size      int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListBackups returns the backups, oldest first.
func (s *Store) ListBackups() ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.backupPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".db" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			log.Warnf("%s Failed to stat %s: %v", logcolors.LogCacheBackups, entry.Name(), err)
			continue
		}
		backups = append(backups, BackupInfo{
			FileName:  entry.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	return backups, nil
}

func (s *Store) backupFile(name string) (string, error) {
	if name == "" || filepath.Base(name) != name || filepath.Ext(name) != ".db" {
		return "", ErrInvalidBackup
	}
	path := filepath.Join(s.backupPath, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("backup file not found: %s", name)
	}
	return path, nil
}

// Restore replaces the database with the named backup. On failure the
// previous database is put back.
func (s *Store) Restore(name string) error {
	path, err := s.backupFile(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log.Infof("%s Restoring from %s", logcolors.LogCacheRestore, name)
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	previous := s.dbPath + ".pre-restore"
	if err := copyFile(s.dbPath, previous); err != nil {
		s.open()
		return fmt.Errorf("failed to save current database: %w", err)
	}
	if err := copyFile(path, s.dbPath); err != nil {
		copyFile(previous, s.dbPath)
		s.open()
		return fmt.Errorf("failed to copy backup: %w", err)
	}
	if err := s.open(); err != nil {
		copyFile(previous, s.dbPath)
		if reopenErr := s.open(); reopenErr != nil {
			log.Errorf("%s Failed to reopen previous database: %v", logcolors.LogCacheRestore, reopenErr)
		}
		return fmt.Errorf("backup is not a usable database: %w", err)
	}
	os.Remove(previous)

	log.Infof("%s Restored from %s", logcolors.LogCacheRestore, name)
	return nil
}

// DeleteBackup removes the named backup.
func (s *Store) DeleteBackup(name string) error {
	path, err := s.backupFile(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	log.Infof("%s Deleted backup %s", logcolors.LogCacheBackup, name)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
