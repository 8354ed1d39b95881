package repo

import (
	"SecureDrop/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
)

// ArtifactRepository: хранилище записей артефактов с атомарным условным обновлением.
type ArtifactRepository interface {
	// Create сохраняет новую запись.
	Create(ctx context.Context, a *model.Artifact) error

	// GetByID возвращает запись или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.Artifact, error)

	// UpdateWithVersion применяет updates, только если версия записи равна expectedVersion.
	// Версия увеличивается на 1, возвращается новая. Иначе — ErrVersionConflict.
	// updated_at берётся из updates, если задан.
	UpdateWithVersion(ctx context.Context, id string, expectedVersion int64, updates map[string]any) (int64, error)

	// MarkBlobPurged отмечает, что зашифрованные байты удалены. Идемпотентен,
	// версию не меняет: запись к этому моменту уже в конечном состоянии.
	MarkBlobPurged(ctx context.Context, id string) error

	// Delete удаляет запись.
	Delete(ctx context.Context, id string) error

	// ListExpiring: неконечные записи с истёкшим дедлайном.
	ListExpiring(ctx context.Context, now time.Time, limit int) ([]model.Artifact, error)

	// ListUnpurged: конечные записи, чей блоб ещё не удалён.
	ListUnpurged(ctx context.Context, limit int) ([]model.Artifact, error)

	// DeleteTombstones удаляет конечные записи с удалённым блобом, завершённые раньше before.
	DeleteTombstones(ctx context.Context, before time.Time) (int64, error)

	// ListByOwner: все отправленные пользователем, новые первыми.
	ListByOwner(ctx context.Context, ownerID int64) ([]model.Artifact, error)

	// ListByRecipient: доступные получателю (неконечные), новые первыми.
	ListByRecipient(ctx context.Context, recipientID int64) ([]model.Artifact, error)
}

type artifactRepo struct {
	db *gorm.DB
}

// NewArtifactRepository создаёт реализацию репозитория для Artifact.
func NewArtifactRepository(db *gorm.DB) ArtifactRepository {
	return &artifactRepo{db: db}
}

var (
	liveStatuses     = []string{string(model.StatusPending), string(model.StatusDownloaded)}
	terminalStatuses = []string{string(model.StatusExpired), string(model.StatusDestroyed)}
)

func (r *artifactRepo) Create(ctx context.Context, a *model.Artifact) error {
	if a.Version == 0 {
		a.Version = 1
	}
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *artifactRepo) GetByID(ctx context.Context, id string) (*model.Artifact, error) {
	var a model.Artifact
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *artifactRepo) UpdateWithVersion(ctx context.Context, id string, expectedVersion int64, updates map[string]any) (int64, error) {
	// копия, чтобы не менять карту вызывающего
	cols := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		cols[k] = v
	}
	cols["version"] = gorm.Expr("version + 1")
	if _, ok := cols["updated_at"]; !ok {
		cols["updated_at"] = time.Now().UTC()
	}

	tx := r.db.WithContext(ctx).
		Model(&model.Artifact{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(cols)
	if tx.Error != nil {
		return 0, tx.Error
	}
	if tx.RowsAffected == 0 {
		return 0, ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

func (r *artifactRepo) MarkBlobPurged(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&model.Artifact{}).
		Where("id = ? AND blob_purged = ?", id, false).
		UpdateColumn("blob_purged", true).Error
}

func (r *artifactRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Artifact{}).Error
}

func (r *artifactRepo) ListExpiring(ctx context.Context, now time.Time, limit int) ([]model.Artifact, error) {
	var list []model.Artifact
	q := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at < ?", liveStatuses, now.UTC()).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return list, q.Find(&list).Error
}

func (r *artifactRepo) ListUnpurged(ctx context.Context, limit int) ([]model.Artifact, error) {
	var list []model.Artifact
	q := r.db.WithContext(ctx).
		Where("status IN ? AND blob_purged = ?", terminalStatuses, false).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return list, q.Find(&list).Error
}

func (r *artifactRepo) DeleteTombstones(ctx context.Context, before time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("status IN ? AND blob_purged = ? AND terminated_at < ?", terminalStatuses, true, before.UTC()).
		Delete(&model.Artifact{})
	return tx.RowsAffected, tx.Error
}

func (r *artifactRepo) ListByOwner(ctx context.Context, ownerID int64) ([]model.Artifact, error) {
	var list []model.Artifact
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}

func (r *artifactRepo) ListByRecipient(ctx context.Context, recipientID int64) ([]model.Artifact, error) {
	var list []model.Artifact
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND status IN ?", recipientID, liveStatuses).
		Order("created_at DESC").
		Find(&list).Error
	return list, err
}
