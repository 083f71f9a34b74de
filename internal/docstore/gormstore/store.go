// Package gormstore is a SQL-backed docstore.Store. Documents are JSON rows in
// one table; live subscriptions re-read a document whenever the notifier
// reports a change to its path.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/gallery-client/internal/docstore"
	"github.com/yungbote/gallery-client/internal/docstore/notify"
	"github.com/yungbote/gallery-client/internal/platform/logger"
)

type Store struct {
	db       *gorm.DB
	notifier notify.Notifier
	log      *logger.Logger
	now      func() time.Time
}

var _ docstore.Store = (*Store)(nil)

func New(db *gorm.DB, notifier notify.Notifier, baseLog *logger.Logger) *Store {
	if notifier == nil {
		notifier = notify.NewLocal()
	}
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &Store{
		db:       db,
		notifier: notifier,
		log:      baseLog.With("store", "GormStore"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Get(ctx context.Context, path docstore.Path) (*docstore.Document, error) {
	if err := docstore.ValidateDocumentPath(path); err != nil {
		return nil, err
	}
	row, err := s.load(ctx, s.db, path)
	if err != nil {
		return nil, err
	}
	return toDocument(path, row)
}

func (s *Store) Set(ctx context.Context, path docstore.Path, data docstore.Data) error {
	return s.write(ctx, path, false, func(_ docstore.Data) docstore.Data {
		return docstore.ApplySet(data)
	})
}

func (s *Store) Merge(ctx context.Context, path docstore.Path, data docstore.Data) error {
	return s.write(ctx, path, false, func(cur docstore.Data) docstore.Data {
		return docstore.ApplyMerge(cur, data)
	})
}

func (s *Store) Update(ctx context.Context, path docstore.Path, data docstore.Data) error {
	return s.write(ctx, path, true, func(cur docstore.Data) docstore.Data {
		return docstore.ApplyMerge(cur, data)
	})
}

// write runs next against the row locked FOR UPDATE, so concurrent writers on
// one path (Increment, ArrayUnion) apply in turn instead of overwriting each
// other. A missing row is first inserted empty with ON CONFLICT DO NOTHING so
// there is always a row to lock.
func (s *Store) write(ctx context.Context, path docstore.Path, mustExist bool, next func(docstore.Data) docstore.Data) error {
	if err := docstore.ValidateDocumentPath(path); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		created := false
		if !mustExist {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "path"}},
				DoNothing: true,
			}).Create(&StoredDocument{
				Path:       string(path),
				Collection: string(path.Parent()),
				DocID:      path.ID(),
				Data:       datatypes.JSON("{}"),
				CreatedAt:  now,
				UpdatedAt:  now,
			})
			if res.Error != nil {
				return res.Error
			}
			created = res.RowsAffected == 1
		}

		row, err := s.load(ctx, tx.Clauses(clause.Locking{Strength: "UPDATE"}), path)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("%w: %s", docstore.ErrNotFound, path)
		}
		var cur docstore.Data
		if !created {
			if cur, err = decodeData(row.Data); err != nil {
				return err
			}
		}
		raw, err := json.Marshal(next(cur))
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		return tx.Model(&StoredDocument{}).
			Where("path = ?", string(path)).
			Updates(map[string]any{"data": datatypes.JSON(raw), "updated_at": now}).Error
	})
	if err != nil {
		return err
	}
	if perr := s.notifier.Publish(ctx, string(path)); perr != nil {
		// The write landed; only live listeners miss this change.
		s.log.Warn("change notification failed", "path", string(path), "error", perr)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection docstore.Path, filters ...docstore.Filter) ([]*docstore.Document, error) {
	if err := docstore.ValidateFilters(filters); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Model(&StoredDocument{}).Where("collection = ?", string(collection))
	if ids, ok := docstore.IDsFromFilters(filters); ok {
		q = q.Where("doc_id IN ?", ids)
	}
	var rows []*StoredDocument
	if err := q.Order("doc_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*docstore.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := toDocument(docstore.Path(row.Path), row)
		if err != nil {
			return nil, err
		}
		// Field filters run here so the JSON column stays dialect-neutral.
		if docstore.Matches(doc, filters) {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Subscribe(ctx context.Context, path docstore.Path, fn docstore.Listener) (docstore.Subscription, error) {
	if fn == nil {
		return nil, fmt.Errorf("listener required")
	}
	if err := docstore.ValidateDocumentPath(path); err != nil {
		return nil, err
	}
	sub := &subscription{store: s, path: path, fn: fn}
	sub.setCancel(s.notifier.Subscribe(string(path), sub.refresh))
	// initial snapshot; the listener sees the current state before any change
	sub.refresh()
	return sub, nil
}

func (s *Store) load(ctx context.Context, tx *gorm.DB, path docstore.Path) (*StoredDocument, error) {
	var row StoredDocument
	err := tx.WithContext(ctx).Where("path = ?", string(path)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func toDocument(path docstore.Path, row *StoredDocument) (*docstore.Document, error) {
	doc := &docstore.Document{Path: path, ID: path.ID()}
	if row == nil {
		return doc, nil
	}
	data, err := decodeData(row.Data)
	if err != nil {
		return nil, err
	}
	doc.Exists = true
	doc.Data = data
	return doc, nil
}

func decodeData(raw datatypes.JSON) (docstore.Data, error) {
	if len(raw) == 0 {
		return docstore.Data{}, nil
	}
	var out docstore.Data
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if out == nil {
		out = docstore.Data{}
	}
	return out, nil
}
