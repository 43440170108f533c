package repository

import (
	"github.com/aledz7/df-graficas-sub017/internal/models"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(tenantID, id uint) (*models.User, error) {
	var user models.User
	err := r.db.Where("tenant_id = ? AND is_active = ?", tenantID, true).First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByIDs(tenantID uint, ids []uint) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.Where("tenant_id = ? AND is_active = ? AND id IN ?", tenantID, true, ids).
		Find(&users).Error
	return users, err
}
