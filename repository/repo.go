package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clipstream/entities"
)

// ErrRecordNotFound is returned for lookups that match nothing.
var ErrRecordNotFound = gorm.ErrRecordNotFound

type Repository interface {
	Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error
	GetDB() *gorm.DB
	AutoMigrate() error

	CreateUser(ctx context.Context, user *entities.User) error
	FindUserByID(ctx context.Context, id uuid.UUID) (*entities.User, error)
	FindUserByEmail(ctx context.Context, email string) (*entities.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)

	CreateClip(ctx context.Context, clip *entities.Clip) error
	FindClipByID(ctx context.Context, id uuid.UUID) (*entities.Clip, error)
	ListVisibleClips(ctx context.Context, viewerID *uuid.UUID, page, limit int) ([]*entities.Clip, int64, error)
	ListUserClips(ctx context.Context, userID uuid.UUID, viewerID *uuid.UUID, page, limit int) ([]*entities.Clip, int64, error)
	ListOwnClips(ctx context.Context, userID uuid.UUID, page, limit int) ([]*entities.Clip, int64, error)
	SaveClip(ctx context.Context, clip *entities.Clip) error
	DeleteClip(ctx context.Context, id uuid.UUID) error
	IncrementClipViews(ctx context.Context, id uuid.UUID) error
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB) Repository {
	gormDB, _ := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	return &repo{
		db: gormDB,
	}
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) AutoMigrate() error {
	return r.db.AutoMigrate(&entities.User{}, &entities.Clip{})
}

func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	return r.GetDB().Transaction(func(tx *gorm.DB) error {
		return callback(ctx)
	}, opts...)
}

func (r *repo) CreateUser(ctx context.Context, user *entities.User) error {
	return r.GetDB().WithContext(ctx).Create(user).Error
}

func (r *repo) FindUserByID(ctx context.Context, id uuid.UUID) (*entities.User, error) {
	user := &entities.User{}
	err := r.GetDB().WithContext(ctx).First(user, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *repo) FindUserByEmail(ctx context.Context, email string) (*entities.User, error) {
	user := &entities.User{}
	err := r.GetDB().WithContext(ctx).First(user, "email = ?", email).Error
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (r *repo) UserExists(ctx context.Context, username, email string) (bool, error) {
	var count int64
	err := r.GetDB().WithContext(ctx).Model(&entities.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) CreateClip(ctx context.Context, clip *entities.Clip) error {
	return r.GetDB().WithContext(ctx).Create(clip).Error
}

func (r *repo) FindClipByID(ctx context.Context, id uuid.UUID) (*entities.Clip, error) {
	clip := &entities.Clip{}
	err := r.GetDB().WithContext(ctx).Preload("User").First(clip, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return clip, nil
}

// visibleScope limits a query to public clips plus the viewer's own.
func visibleScope(viewerID *uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if viewerID == nil {
			return db.Where("is_public = ?", true)
		}
		return db.Where("is_public = ? OR user_id = ?", true, *viewerID)
	}
}

func (r *repo) listClips(ctx context.Context, scope func(*gorm.DB) *gorm.DB, page, limit int) ([]*entities.Clip, int64, error) {
	query := r.GetDB().WithContext(ctx).Model(&entities.Clip{}).Scopes(scope)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var clips []*entities.Clip
	err := query.Preload("User").
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&clips).Error
	if err != nil {
		return nil, 0, err
	}
	return clips, total, nil
}

func (r *repo) ListVisibleClips(ctx context.Context, viewerID *uuid.UUID, page, limit int) ([]*entities.Clip, int64, error) {
	return r.listClips(ctx, visibleScope(viewerID), page, limit)
}

func (r *repo) ListUserClips(ctx context.Context, userID uuid.UUID, viewerID *uuid.UUID, page, limit int) ([]*entities.Clip, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		return visibleScope(viewerID)(db).Where("user_id = ?", userID)
	}
	return r.listClips(ctx, scope, page, limit)
}

func (r *repo) ListOwnClips(ctx context.Context, userID uuid.UUID, page, limit int) ([]*entities.Clip, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}
	return r.listClips(ctx, scope, page, limit)
}

func (r *repo) SaveClip(ctx context.Context, clip *entities.Clip) error {
	return r.GetDB().WithContext(ctx).Save(clip).Error
}

func (r *repo) DeleteClip(ctx context.Context, id uuid.UUID) error {
	return r.GetDB().WithContext(ctx).Delete(&entities.Clip{}, "id = ?", id).Error
}

// IncrementClipViews bumps the counter in a single UPDATE so concurrent
// views do not lose increments.
func (r *repo) IncrementClipViews(ctx context.Context, id uuid.UUID) error {
	err := r.GetDB().WithContext(ctx).Model(&entities.Clip{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + 1")).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return nil
}
