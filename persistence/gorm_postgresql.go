// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/gonu/models"
)

// GormStore 使用GORM的PostgreSQL实现，会话表按版本号做乐观锁，
// 变更通过 NOTIFY 广播给所有进程
type GormStore struct {
	db   *gorm.DB
	hub  *Hub
	feed *pgFeed
}

// NewGormStore 创建GORM PostgreSQL数据库连接
func NewGormStore(dsn string) (*GormStore, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold: time.Second,   // 慢SQL阈值
			LogLevel:      logger.Silent, // 日志级别
			Colorful:      false,         // 禁用彩色打印
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	// 获取通用数据库对象 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.AutoMigrate(&models.GormSession{}, &models.GormMatchRecord{}); err != nil {
		return nil, err
	}

	hub := NewHub()
	feed, err := newPGFeed(dsn, hub)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &GormStore{db: db, hub: hub, feed: feed}, nil
}

func notify(tx *gorm.DB, c Change) error {
	payload, err := encodeChange(c)
	if err != nil {
		return err
	}
	return tx.Exec("SELECT pg_notify(?, ?)", notifyChannel, string(payload)).Error
}

func (p *GormStore) Create(ctx context.Context, sess *models.GameSession) error {
	sess.Version = 1
	row := sess.ToGorm()
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		return notify(tx, Change{ID: sess.ID, Session: sess})
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("postgres create %s: %w", sess.ID, err)
	}
	return nil
}

func (p *GormStore) Read(ctx context.Context, id string) (*models.GameSession, error) {
	var row models.GormSession
	if err := p.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("postgres read %s: %w", id, err)
	}
	return row.FromGorm(), nil
}

// Write 仅当版本号一致时更新
func (p *GormStore) Write(ctx context.Context, sess *models.GameSession, expectedVersion int64) error {
	next := sess.Clone()
	next.Version = expectedVersion + 1
	row := next.ToGorm()

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.GormSession{}).
			Where("id = ? AND version = ?", row.ID, expectedVersion).
			Select("*").Omit("id", "created_at").
			Updates(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.GormSession{}).Where("id = ?", row.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrConflict
		}
		return notify(tx, Change{ID: next.ID, Session: next})
	})
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	if err != nil {
		return fmt.Errorf("postgres write %s: %w", sess.ID, err)
	}
	sess.Version = next.Version
	return nil
}

func (p *GormStore) Delete(ctx context.Context, id string) error {
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.GormSession{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return notify(tx, Change{ID: id, Deleted: true})
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("postgres delete %s: %w", id, err)
	}
	return err
}

func (p *GormStore) Subscribe(ctx context.Context, id string) (<-chan Change, error) {
	return p.hub.Subscribe(ctx, id), nil
}

// SaveMatch 保存对局记录
func (p *GormStore) SaveMatch(ctx context.Context, rec *models.MatchRecord) error {
	return p.db.WithContext(ctx).Create(rec.ToGorm()).Error
}

// PlayerStats 统计玩家胜负
func (p *GormStore) PlayerStats(ctx context.Context, userID string) (*models.PlayerStats, error) {
	var row struct {
		TotalGames int
		Wins       int
		Losses     int
	}
	err := p.db.WithContext(ctx).Raw(`
        SELECT
            COUNT(*) AS total_games,
            COALESCE(SUM(CASE WHEN winner_id = ? THEN 1 ELSE 0 END), 0) AS wins,
            COALESCE(SUM(CASE WHEN loser_id = ? THEN 1 ELSE 0 END), 0) AS losses
        FROM match_records
        WHERE winner_id = ? OR loser_id = ?`,
		userID, userID, userID, userID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &models.PlayerStats{UserID: userID, TotalGames: row.TotalGames, Wins: row.Wins, Losses: row.Losses}, nil
}

// Close 关闭数据库连接
func (p *GormStore) Close() error {
	p.hub.Close()
	feedErr := p.feed.Close()
	sqlDB, err := p.db.DB()
	if err != nil {
		return errors.Join(feedErr, err)
	}
	return errors.Join(feedErr, sqlDB.Close())
}
