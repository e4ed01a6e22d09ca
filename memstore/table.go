package memstore

import (
	"context"
	"sort"
	"time"

	"library_circulation/circulation"
)

type matcher[T any] interface {
	Match(T) bool
}

// table is one entity's rows plus the constraints the SQL schema enforces.
type table[T any, F matcher[T]] struct {
	rows map[string]T

	id    func(*T) string
	less  func(a, b *T) bool
	stamp func(t *T, now time.Time, created bool)
	// unique 返回与 t 冲突的约束名，空串表示无冲突（模拟唯一索引）。
	unique func(existing, t *T) string
}

func (t *table[T, F]) clone() *table[T, F] {
	c := *t
	c.rows = make(map[string]T, len(t.rows))
	for k, v := range t.rows {
		c.rows[k] = v
	}
	return &c
}

func (t *table[T, F]) Get(_ context.Context, id string) (*T, error) {
	v, ok := t.rows[id]
	if !ok {
		return nil, circulation.ErrNoRecord
	}
	return &v, nil
}

// GetForUpdate 整个事务已独占 store，行锁无需额外处理。
func (t *table[T, F]) GetForUpdate(ctx context.Context, id string) (*T, error) {
	return t.Get(ctx, id)
}

func (t *table[T, F]) Find(_ context.Context, filter F) ([]T, error) {
	return t.find(filter), nil
}

func (t *table[T, F]) find(filter F) []T {
	out := make([]T, 0)
	for _, v := range t.rows {
		if filter.Match(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return t.less(&out[i], &out[j]) })
	return out
}

func (t *table[T, F]) First(_ context.Context, filter F) (*T, error) {
	rows := t.find(filter)
	if len(rows) == 0 {
		return nil, circulation.ErrNoRecord
	}
	return &rows[0], nil
}

func (t *table[T, F]) Exists(_ context.Context, filter F) (bool, error) {
	for _, v := range t.rows {
		if filter.Match(v) {
			return true, nil
		}
	}
	return false, nil
}

func (t *table[T, F]) Count(_ context.Context, filter F) (int64, error) {
	var n int64
	for _, v := range t.rows {
		if filter.Match(v) {
			n++
		}
	}
	return n, nil
}

func (t *table[T, F]) Add(_ context.Context, entity *T) error {
	id := t.id(entity)
	if _, ok := t.rows[id]; ok {
		return circulation.Conflict("duplicate primary key "+id, nil)
	}
	if err := t.checkUnique(entity); err != nil {
		return err
	}
	t.stamp(entity, time.Now().UTC(), true)
	t.rows[id] = *entity
	return nil
}

func (t *table[T, F]) Update(_ context.Context, entity *T) error {
	id := t.id(entity)
	if _, ok := t.rows[id]; !ok {
		return circulation.ErrNoRecord
	}
	if err := t.checkUnique(entity); err != nil {
		return err
	}
	t.stamp(entity, time.Now().UTC(), false)
	t.rows[id] = *entity
	return nil
}

func (t *table[T, F]) Delete(_ context.Context, entity *T) error {
	id := t.id(entity)
	if _, ok := t.rows[id]; !ok {
		return circulation.ErrNoRecord
	}
	delete(t.rows, id)
	return nil
}

func (t *table[T, F]) List(_ context.Context, filter F, page circulation.PageRequest) (circulation.Page[T], error) {
	page = page.Normalize()
	rows := t.find(filter)
	out := circulation.Page[T]{Total: int64(len(rows)), Page: page.Page, Size: page.Size, Items: []T{}}
	from := page.Offset()
	if from >= len(rows) {
		return out, nil
	}
	to := from + page.Size
	if to > len(rows) {
		to = len(rows)
	}
	out.Items = rows[from:to]
	return out, nil
}

func (t *table[T, F]) checkUnique(entity *T) error {
	if t.unique == nil {
		return nil
	}
	id := t.id(entity)
	for k, v := range t.rows {
		if k == id {
			continue
		}
		if name := t.unique(&v, entity); name != "" {
			return circulation.Conflict("unique constraint "+name+" violated", nil)
		}
	}
	return nil
}
