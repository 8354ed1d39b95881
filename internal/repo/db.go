package repo

import (
	"SecureDrop/internal/model"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound: записи нет.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict: условное обновление не нашло строку с ожидаемой версией.
	ErrVersionConflict = errors.New("version conflict")
)

// InitDB открывает БД и применяет миграции.
// driver: "postgres" или "sqlite"; для sqlite используется modernc.org/sqlite (без cgo).
func InitDB(driver, dsn string) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch strings.ToLower(driver) {
	case "", "postgres", "postgresql":
		if dsn == "" {
			return nil, errors.New("empty database dsn")
		}
		dial = postgres.Open(dsn)
	case "sqlite":
		if dsn == "" {
			dsn = "file:securedrop.db"
		}
		dial = gormsqlite.Dialector{DriverName: "sqlite", DSN: dsn}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if dial.Name() == "sqlite" {
		// у sqlite один писатель; одно соединение убирает SQLITE_BUSY/LOCKED
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&model.User{}, &model.Artifact{}); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return db, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
