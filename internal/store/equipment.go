package store

import (
	"context"
	"errors"

	"github.com/plantforge/equipment-pipeline/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Equipment interface {
	List(ctx context.Context, facility string) (model.EquipmentList, error)
	FindByIdentity(ctx context.Context, facility, componentClass, tag string) (model.EquipmentList, error)
	Upsert(ctx context.Context, equipment model.Equipment) error
	UpsertMany(ctx context.Context, equipment []model.Equipment) error
	Count(ctx context.Context) (int64, error)
	InitialMigration() error
}

type EquipmentStore struct {
	db *gorm.DB
}

// Make sure we conform to Equipment interface
var _ Equipment = (*EquipmentStore)(nil)

func NewEquipmentStore(db *gorm.DB) Equipment {
	return &EquipmentStore{db: db}
}

func (s *EquipmentStore) InitialMigration() error {
	return s.db.AutoMigrate(&model.Equipment{})
}

func (s *EquipmentStore) List(ctx context.Context, facility string) (model.EquipmentList, error) {
	var equipment model.EquipmentList
	tx := s.db.WithContext(ctx).Model(&model.Equipment{}).Order("tag")
	if facility != "" {
		tx = tx.Where("facility = ?", facility)
	}
	if result := tx.Find(&equipment); result.Error != nil {
		return nil, result.Error
	}
	return equipment, nil
}

func (s *EquipmentStore) FindByIdentity(ctx context.Context, facility, componentClass, tag string) (model.EquipmentList, error) {
	var equipment model.EquipmentList
	tx := s.db.WithContext(ctx).Model(&model.Equipment{})
	if facility != "" {
		tx = tx.Where("facility = ?", facility)
	}
	if componentClass != "" {
		tx = tx.Where("component_class = ?", componentClass)
	}
	if tag != "" {
		tx = tx.Where("tag = ?", tag)
	}
	if result := tx.Find(&equipment); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return model.EquipmentList{}, nil
		}
		return nil, result.Error
	}
	return equipment, nil
}

func (s *EquipmentStore) Upsert(ctx context.Context, equipment model.Equipment) error {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "facility"}, {Name: "tag"}},
		DoUpdates: clause.AssignmentColumns([]string{"card", "validation_score", "component_class_uri", "updated_at"}),
	}).Create(&equipment)
	return result.Error
}

func (s *EquipmentStore) UpsertMany(ctx context.Context, equipment []model.Equipment) error {
	if len(equipment) == 0 {
		return nil
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "facility"}, {Name: "tag"}},
		DoUpdates: clause.AssignmentColumns([]string{"card", "validation_score", "component_class_uri", "updated_at"}),
	}).Create(&equipment)
	return result.Error
}

func (s *EquipmentStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if result := s.db.WithContext(ctx).Model(&model.Equipment{}).Count(&count); result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}
