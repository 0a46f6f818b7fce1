package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
	"github.com/plantforge/equipment-pipeline/internal/store/model"
	"gorm.io/gorm"
)

// Query and statement names understood by the data store backend.
const (
	QueryEquipmentByIdentity = "equipment_by_identity"
	QueryEquipmentList       = "equipment_list"
	StatementUpsertEquipment = "upsert_equipment"
)

// CardRecord wraps a card for gateway writes.
func CardRecord(card api.EquipmentCard) Record {
	return Record{"card": card}
}

// IdentityParams builds the duplicate-detection query parameters.
func IdentityParams(facility, componentClass, tag string) Record {
	return Record{
		"facility":       facility,
		"componentClass": componentClass,
		"tag":            tag,
	}
}

// DataStoreBackend adapts the equipment store to the gateway's Backend
// interface, translating named statements into typed store calls and
// classifying errors as transient or permanent.
type DataStoreBackend struct {
	store Store
}

var _ Backend = (*DataStoreBackend)(nil)

func NewDataStoreBackend(s Store) *DataStoreBackend {
	return &DataStoreBackend{store: s}
}

func (b *DataStoreBackend) Read(ctx context.Context, query string, params Record) ([]Record, error) {
	switch query {
	case QueryEquipmentByIdentity:
		equipment, err := b.store.Equipment().FindByIdentity(ctx,
			stringParam(params, "facility"),
			stringParam(params, "componentClass"),
			stringParam(params, "tag"),
		)
		if err != nil {
			return nil, classify(err)
		}
		return equipmentRecords(equipment)
	case QueryEquipmentList:
		equipment, err := b.store.Equipment().List(ctx, stringParam(params, "facility"))
		if err != nil {
			return nil, classify(err)
		}
		return equipmentRecords(equipment)
	default:
		return nil, NewPermanentError(fmt.Errorf("unknown query %q", query))
	}
}

func (b *DataStoreBackend) Write(ctx context.Context, statement string, params Record) (WriteSummary, error) {
	switch statement {
	case StatementUpsertEquipment:
		record, err := recordToEquipment(params)
		if err != nil {
			return WriteSummary{}, NewPermanentError(err)
		}
		if err := b.store.Equipment().Upsert(ctx, record); err != nil {
			return WriteSummary{}, classify(err)
		}
		return WriteSummary{RowsAffected: 1}, nil
	default:
		return WriteSummary{}, NewPermanentError(fmt.Errorf("unknown statement %q", statement))
	}
}

func (b *DataStoreBackend) WriteMany(ctx context.Context, statement string, items []Record) (WriteSummary, error) {
	switch statement {
	case StatementUpsertEquipment:
		records := make([]model.Equipment, 0, len(items))
		for _, item := range items {
			record, err := recordToEquipment(item)
			if err != nil {
				return WriteSummary{}, NewPermanentError(err)
			}
			records = append(records, record)
		}
		if err := b.store.Equipment().UpsertMany(ctx, records); err != nil {
			return WriteSummary{}, classify(err)
		}
		return WriteSummary{RowsAffected: int64(len(records))}, nil
	default:
		return WriteSummary{}, NewPermanentError(fmt.Errorf("unknown statement %q", statement))
	}
}

func stringParam(params Record, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func recordToEquipment(params Record) (model.Equipment, error) {
	card, ok := params["card"].(api.EquipmentCard)
	if !ok {
		return model.Equipment{}, errors.New("record is missing its card")
	}
	return model.NewEquipmentFromCard(card)
}

func equipmentRecords(equipment model.EquipmentList) ([]Record, error) {
	records := make([]Record, 0, len(equipment))
	for _, e := range equipment {
		card, err := e.ToApiCard()
		if err != nil {
			return nil, NewPermanentError(err)
		}
		records = append(records, Record{
			"tag":            e.Tag,
			"facility":       e.Facility,
			"componentClass": e.ComponentClass,
			"card":           card,
		})
	}
	return records, nil
}

// classify decides whether a gorm error is worth retrying. Connection-class
// failures are transient; constraint and validation failures are not.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return NewPermanentError(ErrDuplicateKey)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransientError(err)
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"database is locked",
		"too many connections",
	} {
		if strings.Contains(msg, fragment) {
			return NewTransientError(err)
		}
	}
	return NewPermanentError(err)
}
