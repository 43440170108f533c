package repository

import (
	"github.com/aledz7/df-graficas-sub017/internal/models"
	"gorm.io/gorm"
)

type AttachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

func (r *AttachmentRepository) FindByID(tenantID, id uint) (*models.Attachment, error) {
	var attachment models.Attachment
	err := r.db.Where("tenant_id = ?", tenantID).First(&attachment, id).Error
	if err != nil {
		return nil, err
	}
	return &attachment, nil
}

// ReferencedKeys reports which object keys are referenced by an attachment
// row, either as the file or as its thumbnail.
func (r *AttachmentRepository) ReferencedKeys(keys []string) (map[string]bool, error) {
	out := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var rows []models.Attachment
	err := r.db.Select("storage_key", "thumbnail_key").
		Where("storage_key IN ? OR thumbnail_key IN ?", keys, keys).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.StorageKey] = true
		if row.ThumbnailKey != "" {
			out[row.ThumbnailKey] = true
		}
	}
	return out, nil
}

func (r *AttachmentRepository) ListAfter(afterID uint, limit int) ([]models.Attachment, error) {
	var rows []models.Attachment
	err := r.db.Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
