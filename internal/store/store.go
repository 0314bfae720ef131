// SPDX-License-Identifier: MIT

// Package store persists download records, listener feedback and generic
// JSON blobs in a local Badger database. Key scheme:
//   - downloads: key = "track:<identifier>" (JSON DownloadRecord)
//   - ratings:   key = "rating:<identifier>:<user id>" ("1" or "-1")
//   - blacklist: key = "blacklist:<identifier>" (TTL'd tombstone)
//   - blobs:     key = "blob:<key>" (caller-defined JSON)
//   - meta:      key = "meta:last_download" (JSON DownloadRecord)
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/aethradio/aether/internal/track"
)

// DownloadRecord is the persisted trace of one completed download.
type DownloadRecord struct {
	Track        track.Track `json:"track"`
	FilePath     string      `json:"file_path"`
	DownloadedAt time.Time   `json:"downloaded_at"`
}

// Blacklist entries expire on their own; a banned track gets another
// chance after a week, matching the download-cache retention.
const blacklistTTL = 7 * 24 * time.Hour

// Media is the Badger-backed media cache.
type Media struct {
	db *badger.DB
}

var _ track.Library = (*Media)(nil)

// Open opens (or creates) the store at path.
func Open(path string) (*Media, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger at %s: %w", path, err)
	}
	return &Media{db: db}, nil
}

// Close releases the underlying database.
func (m *Media) Close() error { return m.db.Close() }

// Ping verifies the store is usable; wired into the readiness probe.
func (m *Media) Ping(ctx context.Context) error {
	if m.db.IsClosed() {
		return errors.New("store: database is closed")
	}
	return nil
}

// PutDownload records a completed download, also updating the
// last-download marker used by health checks.
func (m *Media) PutDownload(ctx context.Context, rec *DownloadRecord) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte("track:"+rec.Track.Identifier), buf); err != nil {
			return err
		}
		return txn.Set([]byte("meta:last_download"), buf)
	})
}

// RecordDownload implements track.Library on top of PutDownload.
func (m *Media) RecordDownload(ctx context.Context, t track.Track, filePath string, downloadedAt time.Time) error {
	return m.PutDownload(ctx, &DownloadRecord{
		Track:        t,
		FilePath:     filePath,
		DownloadedAt: downloadedAt,
	})
}

// GetDownload fetches the record for one track identifier. A missing key
// is (nil, false, nil), not an error.
func (m *Media) GetDownload(ctx context.Context, id string) (*DownloadRecord, bool, error) {
	return m.getRecord("track:" + id)
}

// LastDownload returns the most recently recorded download, if any.
func (m *Media) LastDownload(ctx context.Context) (*DownloadRecord, bool, error) {
	return m.getRecord("meta:last_download")
}

func (m *Media) getRecord(key string) (*DownloadRecord, bool, error) {
	var out DownloadRecord
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &out, true, nil
}

// RateTrack stores one user's verdict on a track; voting again replaces
// the previous verdict. Returns the updated tally.
func (m *Media) RateTrack(ctx context.Context, trackID string, userID int64, like bool) (likes, dislikes int, err error) {
	val := []byte("-1")
	if like {
		val = []byte("1")
	}
	key := []byte(fmt.Sprintf("rating:%s:%d", trackID, userID))
	if err := m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	}); err != nil {
		return 0, 0, err
	}
	return m.Ratings(ctx, trackID)
}

// Ratings returns the like/dislike tally for one track.
func (m *Media) Ratings(ctx context.Context, trackID string) (likes, dislikes int, err error) {
	prefix := []byte("rating:" + trackID + ":")
	err = m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			verr := it.Item().Value(func(val []byte) error {
				if string(val) == "1" {
					likes++
				} else {
					dislikes++
				}
				return nil
			})
			if verr != nil {
				return verr
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return likes, dislikes, nil
}

// BlacklistTrack bans a track from future search results until its entry
// expires.
func (m *Media) BlacklistTrack(ctx context.Context, trackID string) error {
	return m.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte("blacklist:"+trackID), []byte("1")).WithTTL(blacklistTTL)
		return txn.SetEntry(e)
	})
}

// IsBlacklisted implements track.Library.
func (m *Media) IsBlacklisted(ctx context.Context, trackID string) (bool, error) {
	err := m.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("blacklist:" + trackID))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PutJSON stores an arbitrary JSON-encodable blob under a caller key.
func (m *Media) PutJSON(ctx context.Context, key string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("blob:"+key), buf)
	})
}

// GetJSON fetches a blob into v. A missing key is (false, nil).
func (m *Media) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("blob:" + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
