package store

import (
	"gorm.io/gorm"
)

type Store interface {
	Equipment() Equipment
	InitialMigration() error
	Close() error
}

type DataStore struct {
	equipment Equipment
	db        *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		equipment: NewEquipmentStore(db),
		db:        db,
	}
}

func (s *DataStore) Equipment() Equipment {
	return s.equipment
}

func (s *DataStore) InitialMigration() error {
	return s.equipment.InitialMigration()
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
