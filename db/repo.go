package db

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"library_circulation/circulation"
)

// repo is the gorm implementation of circulation.Repository for one entity.
// All calls go through the transaction handle it was created with.
type repo[T any, F any] struct {
	tx    *gorm.DB
	scope func(q *gorm.DB, f F) *gorm.DB
	order string
}

func newRepo[T any, F any](tx *gorm.DB, scope func(*gorm.DB, F) *gorm.DB, order string) *repo[T, F] {
	return &repo[T, F]{tx: tx, scope: scope, order: order}
}

func (r *repo[T, F]) model(ctx context.Context) *gorm.DB {
	return r.tx.WithContext(ctx).Model(new(T))
}

// Get 主键都是 uuid 列；格式不对的 id 直接视为不存在，不发给数据库（否则 22P02 会中止事务）
func (r *repo[T, F]) Get(ctx context.Context, id string) (*T, error) {
	if uuid.Validate(id) != nil {
		return nil, circulation.ErrNoRecord
	}
	var v T
	if err := r.tx.WithContext(ctx).Take(&v, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

// GetForUpdate SELECT ... FOR UPDATE，锁到事务结束
func (r *repo[T, F]) GetForUpdate(ctx context.Context, id string) (*T, error) {
	if uuid.Validate(id) != nil {
		return nil, circulation.ErrNoRecord
	}
	var v T
	if err := r.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&v, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (r *repo[T, F]) Find(ctx context.Context, f F) ([]T, error) {
	var rows []T
	if err := r.scope(r.model(ctx), f).Order(r.order).Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

func (r *repo[T, F]) First(ctx context.Context, f F) (*T, error) {
	var v T
	if err := r.scope(r.model(ctx), f).Order(r.order).Take(&v).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (r *repo[T, F]) Exists(ctx context.Context, f F) (bool, error) {
	var one int
	res := r.scope(r.model(ctx), f).Select("1").Limit(1).Scan(&one)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *repo[T, F]) Count(ctx context.Context, f F) (int64, error) {
	var n int64
	if err := r.scope(r.model(ctx), f).Count(&n).Error; err != nil {
		return 0, translate(err)
	}
	return n, nil
}

func (r *repo[T, F]) Add(ctx context.Context, entity *T) error {
	return translate(r.tx.WithContext(ctx).Create(entity).Error)
}

// Update 写回全部列（包括零值），行不存在时返回 ErrNoRecord
func (r *repo[T, F]) Update(ctx context.Context, entity *T) error {
	res := r.tx.WithContext(ctx).Model(entity).Select("*").Omit("created_at").Updates(entity)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return circulation.ErrNoRecord
	}
	return nil
}

func (r *repo[T, F]) Delete(ctx context.Context, entity *T) error {
	res := r.tx.WithContext(ctx).Delete(entity)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return circulation.ErrNoRecord
	}
	return nil
}

func (r *repo[T, F]) List(ctx context.Context, f F, page circulation.PageRequest) (circulation.Page[T], error) {
	page = page.Normalize()
	out := circulation.Page[T]{Page: page.Page, Size: page.Size, Items: []T{}}

	if err := r.scope(r.model(ctx), f).Count(&out.Total).Error; err != nil {
		return out, translate(err)
	}
	if err := r.scope(r.model(ctx), f).
		Order(r.order).
		Offset(page.Offset()).
		Limit(page.Size).
		Find(&out.Items).Error; err != nil {
		return out, translate(err)
	}
	return out, nil
}
