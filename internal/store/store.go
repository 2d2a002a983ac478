// Package store provides a thin bbolt wrapper for imfs's local data store.
//
// The store keeps fitted models so they can be reused by predict requests,
// and named series so fits can be run against data fetched earlier. Data is
// written explicitly by fit, fetch and series commands; nothing expires.
//
// Buckets:
//
//	models — fitted model records keyed by model id (uuid)
//	series — named series keyed by name
//	_meta  — internal: schema version, created_at
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/MishaAnikutin/interactive-modeling-and-forecasting-service-sub000/internal/model"
)

// Current schema version. Bump when bucket layout or key format changes.
const schemaVersion = 2

// Bucket name constants.
var (
	bucketModels   = []byte("models")
	bucketSeries   = []byte("series")
	bucketInternal = []byte("_meta")
)

// AllBuckets lists every top-level bucket for stats and clear operations.
var AllBuckets = []string{"models", "series"}

// ErrNotFound is returned when a model or series key does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps a bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the bbolt database at path.
// Parent directories are created automatically.
// Runs schema migrations on every open.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening db %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the open database.
func (s *Store) Path() string {
	return s.db.Path()
}

// ─── Migrations ───────────────────────────────────────────────────────────────

// migrate ensures all buckets exist and schema is current.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketModels, bucketSeries, bucketInternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketInternal)
		if meta.Get([]byte("created_at")) == nil {
			if err := meta.Put([]byte("created_at"), []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
				return err
			}
		}
		return meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion)))
	})
}

// SchemaVersion returns the schema version recorded in _meta.
func (s *Store) SchemaVersion() (string, error) {
	var v string
	err := s.db.View(func(tx *bolt.Tx) error {
		v = string(tx.Bucket(bucketInternal).Get([]byte("schema_version")))
		return nil
	})
	return v, err
}

// ─── Models ───────────────────────────────────────────────────────────────────

// ModelRecord is a persisted fitted model: its descriptive info, the opaque
// handle produced by models.Encode, and the result of the fit that created it.
type ModelRecord struct {
	Info   model.ModelInfo       `json:"info"`
	Handle []byte                `json:"handle"`
	Result *model.ForecastResult `json:"result,omitempty"`
}

// PutModel stores rec. A new uuid is assigned when rec.Info.ID is empty and
// CreatedAt is stamped when zero. Returns the stored record.
func (s *Store) PutModel(rec ModelRecord) (ModelRecord, error) {
	if rec.Info.ID == "" {
		rec.Info.ID = uuid.NewString()
	}
	if rec.Info.CreatedAt.IsZero() {
		rec.Info.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return ModelRecord{}, fmt.Errorf("encoding model %s: %w", rec.Info.ID, err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketModels).Put([]byte(rec.Info.ID), data)
	})
	if err != nil {
		return ModelRecord{}, err
	}
	return rec, nil
}

// GetModel retrieves a model record by id.
// Returns (rec, true, nil) if found, (zero, false, nil) if not found.
func (s *Store) GetModel(id string) (ModelRecord, bool, error) {
	var rec ModelRecord
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketModels).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return ModelRecord{}, false, fmt.Errorf("decoding model %s: %w", id, err)
	}
	return rec, found, nil
}

// ListModels returns the info of every stored model, newest first.
func (s *Store) ListModels() ([]model.ModelInfo, error) {
	var infos []model.ModelInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketModels).ForEach(func(k, v []byte) error {
			var rec struct {
				Info model.ModelInfo `json:"info"`
			}
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decoding model %s: %w", k, err)
			}
			infos = append(infos, rec.Info)
			return nil
		})
	})
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, err
}

// DeleteModel removes a model by id. Returns ErrNotFound if it does not exist.
func (s *Store) DeleteModel(id string) error {
	return s.deleteKey(bucketModels, id)
}

// ─── Series ───────────────────────────────────────────────────────────────────

// SeriesMeta summarises a stored series for listings.
type SeriesMeta struct {
	Name      string          `json:"name"`
	Freq      model.Frequency `json:"freq"`
	Count     int             `json:"count"`
	Start     string          `json:"start,omitempty"`
	End       string          `json:"end,omitempty"`
	Source    string          `json:"source,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// storedSeries is the on-disk envelope for a named series.
type storedSeries struct {
	Series    model.Series `json:"series"`
	Source    string       `json:"source,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// PutSeries stores s under s.Name, replacing any previous version.
// source records where the data came from (e.g. "fred:UNRATE"); it may be empty.
func (s *Store) PutSeries(series model.Series, source string) error {
	if series.Name == "" {
		return errors.New("series name is required")
	}
	data, err := json.Marshal(storedSeries{Series: series, Source: source, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encoding series %s: %w", series.Name, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSeries).Put([]byte(series.Name), data)
	})
}

// GetSeries retrieves a stored series by name.
// Returns (series, true, nil) if found, (zero, false, nil) if not found.
func (s *Store) GetSeries(name string) (model.Series, bool, error) {
	var env storedSeries
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSeries).Get([]byte(name))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &env)
	})
	if err != nil {
		return model.Series{}, false, fmt.Errorf("decoding series %s: %w", name, err)
	}
	return env.Series, found, nil
}

// ListSeries returns metadata for all stored series, sorted by name.
func (s *Store) ListSeries() ([]SeriesMeta, error) {
	var metas []SeriesMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		// bbolt iterates keys in byte order, so the result is sorted.
		return tx.Bucket(bucketSeries).ForEach(func(k, v []byte) error {
			var env storedSeries
			if err := json.Unmarshal(v, &env); err != nil {
				return fmt.Errorf("decoding series %s: %w", k, err)
			}
			m := SeriesMeta{
				Name:      env.Series.Name,
				Freq:      env.Series.Freq,
				Count:     env.Series.Len(),
				Source:    env.Source,
				UpdatedAt: env.UpdatedAt,
			}
			if !env.Series.IsEmpty() {
				m.Start = env.Series.First().Date.Format("2006-01-02")
				m.End = env.Series.Last().Date.Format("2006-01-02")
			}
			metas = append(metas, m)
			return nil
		})
	})
	return metas, err
}

// DeleteSeries removes a stored series. Returns ErrNotFound if it does not exist.
func (s *Store) DeleteSeries(name string) error {
	return s.deleteKey(bucketSeries, name)
}

func (s *Store) deleteKey(bucket []byte, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b.Get([]byte(key)) == nil {
			return fmt.Errorf("%s %q: %w", bucket, key, ErrNotFound)
		}
		return b.Delete([]byte(key))
	})
}

// ─── Stats & Maintenance ──────────────────────────────────────────────────────

// BucketStats holds row count and byte size for a single bucket.
type BucketStats struct {
	Name  string
	Count int
	Bytes int64
}

// Stats returns row counts and approximate sizes for all buckets, in
// AllBuckets order.
func (s *Store) Stats() ([]BucketStats, error) {
	var stats []BucketStats
	err := s.db.View(func(tx *bolt.Tx) error {
		for _, name := range AllBuckets {
			b := tx.Bucket([]byte(name))
			if b == nil {
				continue
			}
			st := BucketStats{Name: name}
			if err := b.ForEach(func(k, v []byte) error {
				st.Count++
				st.Bytes += int64(len(k) + len(v))
				return nil
			}); err != nil {
				return err
			}
			stats = append(stats, st)
		}
		return nil
	})
	return stats, err
}

// ClearBucket deletes all entries in the named bucket.
func (s *Store) ClearBucket(name string) error {
	bname := []byte(name)
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bname); err != nil {
			return fmt.Errorf("clearing bucket %s: %w", name, err)
		}
		_, err := tx.CreateBucket(bname)
		return err
	})
}

// ClearAll deletes all entries from every user-facing bucket.
func (s *Store) ClearAll() error {
	for _, name := range AllBuckets {
		if err := s.ClearBucket(name); err != nil {
			return err
		}
	}
	return nil
}

// Compact rewrites the database into a fresh file and swaps it in place,
// returning the file sizes before and after. bbolt never shrinks a file on
// its own; freed pages are only reused.
func (s *Store) Compact() (before, after int64, err error) {
	path := s.db.Path()
	fi, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	before = fi.Size()

	tmpPath := path + ".compact"
	_ = os.Remove(tmpPath)
	dst, err := bolt.Open(tmpPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return 0, 0, fmt.Errorf("opening compaction target: %w", err)
	}
	if err := bolt.Compact(dst, s.db, 64<<20); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return 0, 0, fmt.Errorf("compacting: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, 0, err
	}
	if err := s.db.Close(); err != nil {
		return 0, 0, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, 0, fmt.Errorf("replacing database: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return 0, 0, fmt.Errorf("reopening db %s: %w", path, err)
	}
	s.db = db
	if fi, err = os.Stat(path); err != nil {
		return 0, 0, err
	}
	return before, fi.Size(), nil
}
