// Package history persists artifact version history with GORM.
// This package is internal and should not be imported by external projects.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/patloader/artifact"
)

// =============================================================================
// 🗄️ 版本历史存储
// =============================================================================

// Store 基于 GORM 的版本历史，实现 artifact.VersionHistory
type Store struct {
	db         *gorm.DB
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

var _ artifact.VersionHistory = (*Store)(nil)

// NewStore 创建历史存储，不执行迁移
func NewStore(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:         db,
		logger:     logger.With(zap.String("component", "version_history")),
		maxRetries: 3,
		backoff:    100 * time.Millisecond,
	}, nil
}

// Migrate 创建或更新 artifact_versions 表
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&ArtifactVersionRecord{}); err != nil {
		return fmt.Errorf("migrate artifact_versions: %w", err)
	}
	return nil
}

// Record 追加一条加载记录；可重试的错误按指数退避重试
func (s *Store) Record(ctx context.Context, v artifact.ArtifactVersion) error {
	rec := recordFrom(v)
	if rec.LoadedAt.IsZero() {
		rec.LoadedAt = time.Now()
	}

	var lastErr error
	for i := 0; i < s.maxRetries; i++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Create(&rec).Error
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryableError(err) {
			return fmt.Errorf("record version %s/%s: %w", v.Size, v.Version, err)
		}

		s.logger.Warn("history write failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_retries", s.maxRetries),
			zap.Error(err),
		)

		// 指数退避
		backoff := time.Duration(1<<uint(i)) * s.backoff
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("record version failed after %d retries: %w", s.maxRetries, lastErr)
}

// PreviousVersion 返回早于 current 的最大已记录版本。
// current 为 latest 时没有可比较的顺序，取最近一次加载的具体版本。
func (s *Store) PreviousVersion(ctx context.Context, size artifact.Size, current string) (string, error) {
	if current == artifact.VersionLatest {
		var rec ArtifactVersionRecord
		err := s.db.WithContext(ctx).
			Where("size = ? AND version <> ?", string(size), artifact.VersionLatest).
			Order("loaded_at DESC").
			Order("id DESC").
			First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("no recorded version for %s: %w", size, artifact.ErrNoPreviousVersion)
		}
		if err != nil {
			return "", fmt.Errorf("query history: %w", err)
		}
		return rec.Version, nil
	}

	var versions []string
	err := s.db.WithContext(ctx).
		Model(&ArtifactVersionRecord{}).
		Where("size = ?", string(size)).
		Distinct("version").
		Pluck("version", &versions).Error
	if err != nil {
		return "", fmt.Errorf("query history: %w", err)
	}

	best := ""
	for _, v := range versions {
		if v == artifact.VersionLatest || artifact.CompareVersions(v, current) >= 0 {
			continue
		}
		if best == "" || artifact.CompareVersions(v, best) > 0 {
			best = v
		}
	}
	if best == "" {
		return "", fmt.Errorf("no version before %s for %s: %w", current, size, artifact.ErrNoPreviousVersion)
	}
	return best, nil
}

// List 返回某规格最近的记录，按加载时间倒序
func (s *Store) List(ctx context.Context, size artifact.Size, limit int) ([]artifact.ArtifactVersion, error) {
	if limit <= 0 {
		limit = 50
	}
	var recs []ArtifactVersionRecord
	err := s.db.WithContext(ctx).
		Where("size = ?", string(size)).
		Order("loaded_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	out := make([]artifact.ArtifactVersion, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ToVersion())
	}
	return out, nil
}

// Versions 返回某规格记录过的全部不同版本，按版本顺序升序
func (s *Store) Versions(ctx context.Context, size artifact.Size) ([]string, error) {
	var versions []string
	err := s.db.WithContext(ctx).
		Model(&ArtifactVersionRecord{}).
		Where("size = ?", string(size)).
		Distinct("version").
		Pluck("version", &versions).Error
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	sort.Slice(versions, func(i, j int) bool {
		return artifact.CompareVersions(versions[i], versions[j]) < 0
	})
	return versions, nil
}

// isRetryableError 判断错误是否可重试
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())

	// 死锁
	if strings.Contains(errMsg, "deadlock") {
		return true
	}

	// 序列化失败（PostgreSQL SQLSTATE 40001）
	if strings.Contains(errMsg, "serialization failure") || strings.Contains(errMsg, "40001") {
		return true
	}

	// 连接相关错误
	if strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "broken pipe") {
		return true
	}

	// SQLite 写锁
	if strings.Contains(errMsg, "database is locked") {
		return true
	}

	// driver: bad connection（Go database/sql 标准错误）
	return strings.Contains(errMsg, "bad connection")
}
