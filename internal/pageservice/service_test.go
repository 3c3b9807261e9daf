package pageservice

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/creolewiki/internal/apperr"
	"github.com/starford/creolewiki/internal/checksum"
	"github.com/starford/creolewiki/internal/models"
	"github.com/starford/creolewiki/internal/storage"
	"github.com/starford/creolewiki/internal/testutil"
	"github.com/starford/creolewiki/internal/wiki"
)

type notes struct{ events []string }

func (n *notes) PublishPage(key string, deleted bool) {
	if deleted {
		n.events = append(n.events, "deleted:"+key)
	} else {
		n.events = append(n.events, "changed:"+key)
	}
}

func newService(t *testing.T) (*Service, *notes) {
	t.Helper()
	flat, err := storage.NewFlat(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	n := &notes{}
	return NewService(flat, n, nil), n
}

func TestPutAndGet(t *testing.T) {
	svc, n := newService(t)
	ctx := context.Background()

	d, err := svc.Put(ctx, "a", "== Title\nbody", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Title != "Title" || d.Checksum != checksum.Sum("== Title\nbody") {
		t.Errorf("detail = %+v", d)
	}
	got, err := svc.Get(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "== Title\nbody" || got.HTML == "" {
		t.Errorf("get = %+v", got)
	}
	if len(n.events) != 1 || n.events[0] != "changed:a" {
		t.Errorf("events = %v", n.events)
	}
}

func TestPut_IfMatch(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	v1, _ := svc.Put(ctx, "lock", "v1", "")

	if _, err := svc.Put(ctx, "lock", "v2", v1.Checksum); err != nil {
		t.Fatalf("matching put: %v", err)
	}
	if _, err := svc.Put(ctx, "lock", "v3", `"`+v1.Checksum+`"`); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale put err = %v", err)
	}
	if _, err := svc.Put(ctx, "new", "x", checksum.Sum("")); err != nil {
		t.Errorf("put against empty checksum: %v", err)
	}
}

func TestPut_EmptyDeletes(t *testing.T) {
	svc, n := newService(t)
	ctx := context.Background()
	_, _ = svc.Put(ctx, "gone", "x", "")
	if _, err := svc.Put(ctx, "gone", "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, "gone"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
	if n.events[len(n.events)-1] != "deleted:gone" {
		t.Errorf("events = %v", n.events)
	}
}

func TestHelpIsBuiltinAndReadOnly(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	d, err := svc.Get(ctx, models.HelpKey)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Builtin || d.Content != wiki.HelpText {
		t.Errorf("help = %+v", d)
	}
	if _, err := svc.Put(ctx, models.HelpKey, "x", ""); !errors.Is(err, apperr.ErrReadOnly) {
		t.Errorf("put help err = %v", err)
	}
	if err := svc.Delete(ctx, models.HelpKey, ""); !errors.Is(err, apperr.ErrReadOnly) {
		t.Errorf("delete help err = %v", err)
	}
}

func TestDelete(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	d, _ := svc.Put(ctx, "x", "body", "")

	if err := svc.Delete(ctx, "x", "wrong"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale delete err = %v", err)
	}
	if err := svc.Delete(ctx, "x", d.Checksum); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "x", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestInvalidKey(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.Get(context.Background(), "../x"); !errors.Is(err, apperr.ErrInvalidKey) {
		t.Errorf("err = %v", err)
	}
}

func TestSearchRequiresSearcher(t *testing.T) {
	svc, _ := newService(t)
	if svc.CanSearch() {
		t.Fatal("flat store must not advertise search")
	}
	if _, err := svc.Search(context.Background(), "q", 10); !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("err = %v", err)
	}
}

func TestListAndSearchOnSQLite(t *testing.T) {
	db := testutil.TestSQLite(t)
	svc := NewService(db, nil, nil)
	ctx := context.Background()
	_, _ = svc.Put(ctx, "soup", "lentil soup recipe", "")
	_, _ = svc.Put(ctx, "bread", "sourdough", "")

	metas, err := svc.List(ctx)
	if err != nil || len(metas) != 2 {
		t.Fatalf("list = %v, %v", metas, err)
	}
	hits, err := svc.Search(ctx, "lentil", 5)
	if err != nil || len(hits) != 1 || hits[0].Key != "soup" {
		t.Errorf("hits = %v, %v", hits, err)
	}
}

func TestRender(t *testing.T) {
	if r := Render("== T\n* a"); !r.Valid || r.Title != "T" || r.HTML != "<h1>T</h1><ul><li>a</li></ul>" {
		t.Errorf("render = %+v", r)
	}
	if r := Render("bad \xff"); r.Valid || r.HTML != "" {
		t.Errorf("invalid render = %+v", r)
	}
}
