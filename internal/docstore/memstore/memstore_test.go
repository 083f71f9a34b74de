package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/gallery-client/internal/docstore"
)

func TestMergeCreatesAndAppliesTransforms(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	path := docstore.PieceStats("p1")

	for i := 0; i < 3; i++ {
		if err := s.Merge(ctx, path, docstore.Data{
			"pieceId":       "p1",
			"totalViews":    docstore.Increment(1),
			"uniqueViewers": docstore.ArrayUnion("u1"),
		}); err != nil {
			t.Fatalf("Merge: %v", err)
		}
	}
	doc, err := s.Get(ctx, path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !doc.Exists {
		t.Fatalf("Get: document should exist")
	}
	if doc.Data["totalViews"] != int64(3) {
		t.Fatalf("totalViews: want=3 got=%v", doc.Data["totalViews"])
	}
	if viewers := doc.Data["uniqueViewers"].([]any); len(viewers) != 1 {
		t.Fatalf("uniqueViewers: want 1 got=%v", viewers)
	}
}

func TestUpdateMissingDocument(t *testing.T) {
	s := New(nil)
	err := s.Update(context.Background(), docstore.ViewingEvent("e1"), docstore.Data{"duration_ms": 10})
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("Update: want ErrNotFound got %v", err)
	}
}

func TestSetReplacesDocument(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	path := docstore.FavoritePiece("u1", "p1")
	_ = s.Set(ctx, path, docstore.Data{"isOn": true, "extra": 1})
	_ = s.Set(ctx, path, docstore.Data{"isOn": false})
	doc, _ := s.Get(ctx, path)
	if _, ok := doc.Data["extra"]; ok {
		t.Fatalf("Set should replace the whole document, got %v", doc.Data)
	}
}

func TestQueryScopesToCollection(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	s.Seed(map[docstore.Path]docstore.Data{
		"galleries/g1/pieces/p1":             {"title": "A", "active": true},
		"galleries/g1/pieces/p2":             {"title": "B", "active": false},
		"galleries/g1/pieces/p3":             {"title": "C", "active": true},
		"galleries/g2/pieces/p1":             {"title": "other", "active": true},
		"galleries/g1/pieces/p1/notes/n1":    {"active": true},
		"galleries/g1/collections/c1":        {"name": "c"},
	})

	docs, err := s.Query(ctx, docstore.Pieces("g1"),
		docstore.IDIn([]string{"p1", "p2"}),
		docstore.Where("active", docstore.OpEqual, true),
	)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "p1" {
		t.Fatalf("Query: want [p1] got %d docs", len(docs))
	}
}

func TestSubscribePushesInitialAndChanges(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	path := docstore.FavoritePiece("u1", "p1")

	var pushes []bool
	sub, err := s.Subscribe(ctx, path, func(doc *docstore.Document, err error) {
		if err != nil {
			t.Fatalf("unexpected push error: %v", err)
		}
		pushes = append(pushes, doc.Exists)
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	_ = s.Set(ctx, path, docstore.Data{"isOn": true})
	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = sub.Close()
	_ = s.Set(ctx, path, docstore.Data{"isOn": false})

	if len(pushes) != 2 || pushes[0] || !pushes[1] {
		t.Fatalf("pushes: want [false true] got %v", pushes)
	}
	if n := s.SubscriberCount(path); n != 0 {
		t.Fatalf("SubscriberCount: want=0 got=%d", n)
	}
}

func TestListenerMayCloseItselfDuringPush(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	path := docstore.FavoritePiece("u1", "p1")

	var sub docstore.Subscription
	calls := 0
	sub, _ = s.Subscribe(ctx, path, func(doc *docstore.Document, err error) {
		calls++
		if doc.Exists {
			_ = sub.Close()
		}
	})
	_ = s.Set(ctx, path, docstore.Data{"isOn": true})
	_ = s.Set(ctx, path, docstore.Data{"isOn": false})
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
}
