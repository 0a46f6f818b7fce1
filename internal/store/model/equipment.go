package model

import (
	"encoding/json"

	"github.com/google/uuid"
	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
	"gorm.io/gorm"
)

type Equipment struct {
	gorm.Model
	ID                uuid.UUID `gorm:"primaryKey;"`
	Tag               string    `gorm:"uniqueIndex:equipment_facility_tag;not null"`
	Facility          string    `gorm:"uniqueIndex:equipment_facility_tag;not null"`
	ComponentClass    string    `gorm:"index;not null"`
	ComponentClassURI string
	Sector            string
	SubSector         string
	ValidationScore   float64
	Card              []byte `gorm:"type:jsonb"`
}

type EquipmentList []Equipment

func (e Equipment) String() string {
	val, _ := json.Marshal(e)
	return string(val)
}

// NewEquipmentFromCard flattens the queryable card fields into columns and
// keeps the full card as its JSON document.
func NewEquipmentFromCard(card api.EquipmentCard) (Equipment, error) {
	id, err := uuid.Parse(card.ID)
	if err != nil {
		id = uuid.New()
	}
	doc, err := json.Marshal(card)
	if err != nil {
		return Equipment{}, err
	}
	return Equipment{
		ID:                id,
		Tag:               card.Tag,
		Facility:          card.Facility,
		ComponentClass:    card.ComponentClass,
		ComponentClassURI: card.ComponentClassURI,
		Sector:            card.Sector,
		SubSector:         card.SubSector,
		ValidationScore:   card.Metadata.ValidationScore,
		Card:              doc,
	}, nil
}

// ToApiCard restores the full card document.
func (e Equipment) ToApiCard() (api.EquipmentCard, error) {
	var card api.EquipmentCard
	if err := json.Unmarshal(e.Card, &card); err != nil {
		return api.EquipmentCard{}, err
	}
	return card, nil
}
