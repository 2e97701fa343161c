package db

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DatabaseManager owns the sqlite databases backing the depositor: one for
// pending peg-in records, one for cached chain snapshots.
type DatabaseManager struct {
	peginDb *gorm.DB
	cacheDb *gorm.DB
}

func NewDatabaseManager(dbDir string) *DatabaseManager {
	dm := &DatabaseManager{}
	dm.initDB(dbDir)
	return dm
}

func (dm *DatabaseManager) initDB(dbDir string) {
	if err := os.MkdirAll(dbDir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	peginPath := filepath.Join(dbDir, "pegin.db")
	peginDb, err := gorm.Open(sqlite.Open(peginPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatalf("Failed to connect to pegin database: %v", err)
	}
	dm.peginDb = peginDb
	log.Debugf("Pegin database connected successfully, path: %s", peginPath)

	cachePath := filepath.Join(dbDir, "chain_cache.db")
	cacheDb, err := gorm.Open(sqlite.Open(cachePath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatalf("Failed to connect to chain cache database: %v", err)
	}
	dm.cacheDb = cacheDb
	log.Debugf("Chain cache database connected successfully, path: %s", cachePath)

	dm.autoMigrate()
	log.Debugf("Database migration completed successfully")
}

func (dm *DatabaseManager) autoMigrate() {
	if err := dm.peginDb.AutoMigrate(&PendingPegin{}); err != nil {
		log.Fatalf("Failed to migrate pegin database: %v", err)
	}
	if err := dm.cacheDb.AutoMigrate(&VaultSnapshot{}); err != nil {
		log.Fatalf("Failed to migrate chain cache database: %v", err)
	}
}

func (dm *DatabaseManager) GetPeginDB() *gorm.DB {
	return dm.peginDb
}

func (dm *DatabaseManager) GetCacheDB() *gorm.DB {
	return dm.cacheDb
}
