package repository

import (
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/models"
	"gorm.io/gorm"
)

type ThreadRepository struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) *ThreadRepository {
	return &ThreadRepository{db: db}
}

// CreateWithMembers inserts the thread and its memberships in one
// transaction. A clash on (tenant_id, unique_key) surfaces as
// gorm.ErrDuplicatedKey and nothing is written.
func (r *ThreadRepository) CreateWithMembers(thread *models.Thread, members []models.ThreadMember) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Members").Create(thread).Error; err != nil {
			return err
		}
		for i := range members {
			members[i].ThreadID = thread.ID
		}
		if len(members) > 0 {
			if err := tx.Create(&members).Error; err != nil {
				return err
			}
		}
		thread.Members = members
		return nil
	})
}

func (r *ThreadRepository) FindByID(tenantID, id uint) (*models.Thread, error) {
	var thread models.Thread
	err := r.db.Preload("Members").
		Where("tenant_id = ?", tenantID).
		First(&thread, id).Error
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *ThreadRepository) FindByUniqueKey(tenantID uint, key string) (*models.Thread, error) {
	var thread models.Thread
	err := r.db.Preload("Members").
		Where("tenant_id = ? AND unique_key = ?", tenantID, key).
		First(&thread).Error
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func (r *ThreadRepository) GetMember(threadID, userID uint) (*models.ThreadMember, error) {
	var member models.ThreadMember
	err := r.db.Where("thread_id = ? AND user_id = ?", threadID, userID).First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *ThreadRepository) AddMember(member *models.ThreadMember) error {
	return r.db.Create(member).Error
}

func (r *ThreadRepository) RemoveMember(threadID, userID uint) error {
	return r.db.Where("thread_id = ? AND user_id = ?", threadID, userID).Delete(&models.ThreadMember{}).Error
}

func (r *ThreadRepository) Archive(tenantID, threadID uint, at time.Time) error {
	return r.db.Model(&models.Thread{}).
		Where("id = ? AND tenant_id = ? AND archived_at IS NULL", threadID, tenantID).
		Update("archived_at", at).Error
}
