package repository

import (
	"fmt"

	"github.com/aledz7/df-graficas-sub017/internal/config"
	"github.com/aledz7/df-graficas-sub017/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// InitDB opens the configured database and migrates the chat schema.
// TranslateError is required: thread creation relies on gorm.ErrDuplicatedKey.
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath + "?_foreign_keys=on&_busy_timeout=5000")
	default:
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.Host,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.Port,
			cfg.SSLMode,
		)
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Thread{},
		&models.ThreadMember{},
		&models.Message{},
		&models.Attachment{},
	); err != nil {
		return err
	}
	for _, stmt := range dialectIndexes(db.Dialector.Name()) {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// dialectIndexes lists indexes that struct tags cannot express. The search
// index expression must stay identical to the one MessageRepository.Search
// filters on or the planner ignores it.
func dialectIndexes(dialect string) []string {
	if dialect != "postgres" {
		return nil
	}
	return []string{
		"CREATE INDEX IF NOT EXISTS idx_messages_body_fts ON messages USING GIN (to_tsvector('simple', body))",
	}
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}
