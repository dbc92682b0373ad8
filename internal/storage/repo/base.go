package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Filter 筛选器接口
type Filter interface {
	Apply(db *gorm.DB) *gorm.DB
}

// Pagination 分页参数
type Pagination struct {
	Page  int
	Limit int
}

// Offset 计算偏移量
func (p *Pagination) Offset() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Order 排序参数
type Order struct {
	Field string
	Sort  string
}

// Orders 排序参数切片
type Orders []Order

// BaseRepository 基础DAO层
type BaseRepository[T any] struct {
	Db *gorm.DB
}

// NewBaseRepository 创建基础DAO层
func NewBaseRepository[T any](db *gorm.DB) *BaseRepository[T] {
	return &BaseRepository[T]{
		Db: db,
	}
}

// Create 创建记录
func (r *BaseRepository[T]) Create(ctx context.Context, item *T) error {
	return r.Db.WithContext(ctx).Create(item).Error
}

// CreateBatch 批量创建记录
func (r *BaseRepository[T]) CreateBatch(ctx context.Context, items []*T, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return r.Db.WithContext(ctx).CreateInBatches(items, batchSize).Error
}

// Delete 删除记录
func (r *BaseRepository[T]) Delete(ctx context.Context, id any) error {
	return r.Db.WithContext(ctx).Delete(new(T), id).Error
}

// FindOne 根据主键查询记录
func (r *BaseRepository[T]) FindOne(ctx context.Context, id any) (*T, error) {
	item := new(T)
	err := r.Db.WithContext(ctx).First(item, id).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return item, nil
}

// FindAll 查询所有记录
func (r *BaseRepository[T]) FindAll(ctx context.Context, filter Filter, pagination *Pagination, orders Orders) ([]*T, error) {
	list := make([]*T, 0)
	query := r.Db.WithContext(ctx).Model(new(T))

	if filter != nil {
		query = filter.Apply(query)
	}

	if pagination != nil {
		query = query.Limit(pagination.Limit).Offset(pagination.Offset())
	}

	for _, order := range orders {
		query = query.Order(order.Field + " " + order.Sort)
	}

	if err := query.Find(&list).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return list, nil
}

// Count 统计记录数量
func (r *BaseRepository[T]) Count(ctx context.Context, filter Filter) (int64, error) {
	var count int64
	query := r.Db.WithContext(ctx).Model(new(T))

	if filter != nil {
		query = filter.Apply(query)
	}

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
