package store_test

import (
	"context"
	"time"

	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
	"github.com/plantforge/equipment-pipeline/internal/config"
	"github.com/plantforge/equipment-pipeline/internal/store"
	"github.com/plantforge/equipment-pipeline/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

func testCard(facility, componentClass, tag string) api.EquipmentCard {
	return api.EquipmentCard{
		Tag:               tag,
		ComponentClass:    componentClass,
		ComponentClassURI: "http://data.posccaesar.org/rdl/RDS416834",
		Facility:          facility,
		Sector:            "CHEM",
		SubSector:         "CHEM-BC",
		Specifications: map[string]api.Quantity{
			"ratedFlow": {Value: 250, Unit: "m3/h"},
		},
		Metadata: api.CardMetadata{
			Version:         "1.0.0",
			Source:          "equipment-pipeline",
			CreatedAt:       time.Now().UTC(),
			ValidationScore: 85,
		},
	}
}

var _ = Describe("equipment store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		cfg := config.NewDefault()
		cfg.Database.Type = "sqlite"
		cfg.Database.Name = ":memory:"

		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		tx := gormdb.Unscoped().Where("1 = 1").Delete(&model.Equipment{})
		Expect(tx.Error).To(BeNil())
	})

	Context("upsert", func() {
		It("successfully inserts a new card", func() {
			equipment, err := model.NewEquipmentFromCard(testCard("CHEM-BC-PETRO", "CentrifugalPump", "P-101"))
			Expect(err).To(BeNil())
			Expect(s.Equipment().Upsert(context.TODO(), equipment)).To(BeNil())

			count, err := s.Equipment().Count(context.TODO())
			Expect(err).To(BeNil())
			Expect(count).To(Equal(int64(1)))
		})

		It("updates on facility and tag conflict instead of duplicating", func() {
			first, err := model.NewEquipmentFromCard(testCard("CHEM-BC-PETRO", "CentrifugalPump", "P-101"))
			Expect(err).To(BeNil())
			Expect(s.Equipment().Upsert(context.TODO(), first)).To(BeNil())

			updated := testCard("CHEM-BC-PETRO", "CentrifugalPump", "P-101")
			updated.Metadata.ValidationScore = 95
			second, err := model.NewEquipmentFromCard(updated)
			Expect(err).To(BeNil())
			Expect(s.Equipment().Upsert(context.TODO(), second)).To(BeNil())

			count, err := s.Equipment().Count(context.TODO())
			Expect(err).To(BeNil())
			Expect(count).To(Equal(int64(1)))

			found, err := s.Equipment().FindByIdentity(context.TODO(), "CHEM-BC-PETRO", "", "P-101")
			Expect(err).To(BeNil())
			Expect(found).To(HaveLen(1))
			Expect(found[0].ValidationScore).To(Equal(95.0))
		})

		It("stores many cards at once", func() {
			cards := []api.EquipmentCard{
				testCard("CHEM-BC-PETRO", "CentrifugalPump", "P-101"),
				testCard("CHEM-BC-PETRO", "CentrifugalPump", "P-102"),
				testCard("CHEM-BC-REFIN", "StorageTank", "TK-201"),
			}
			equipment := make([]model.Equipment, 0, len(cards))
			for _, card := range cards {
				e, err := model.NewEquipmentFromCard(card)
				Expect(err).To(BeNil())
				equipment = append(equipment, e)
			}

			Expect(s.Equipment().UpsertMany(context.TODO(), equipment)).To(BeNil())

			count, err := s.Equipment().Count(context.TODO())
			Expect(err).To(BeNil())
			Expect(count).To(Equal(int64(3)))
		})
	})

	Context("list", func() {
		It("lists all equipment ordered by tag", func() {
			for _, tag := range []string{"P-102", "P-101"} {
				e, err := model.NewEquipmentFromCard(testCard("CHEM-BC-PETRO", "CentrifugalPump", tag))
				Expect(err).To(BeNil())
				Expect(s.Equipment().Upsert(context.TODO(), e)).To(BeNil())
			}

			equipment, err := s.Equipment().List(context.TODO(), "")
			Expect(err).To(BeNil())
			Expect(equipment).To(HaveLen(2))
			Expect(equipment[0].Tag).To(Equal("P-101"))
			Expect(equipment[1].Tag).To(Equal("P-102"))
		})

		It("filters by facility", func() {
			for _, facility := range []string{"CHEM-BC-PETRO", "CHEM-BC-REFIN"} {
				e, err := model.NewEquipmentFromCard(testCard(facility, "CentrifugalPump", "P-101"))
				Expect(err).To(BeNil())
				Expect(s.Equipment().Upsert(context.TODO(), e)).To(BeNil())
			}

			equipment, err := s.Equipment().List(context.TODO(), "CHEM-BC-REFIN")
			Expect(err).To(BeNil())
			Expect(equipment).To(HaveLen(1))
			Expect(equipment[0].Facility).To(Equal("CHEM-BC-REFIN"))
		})
	})

	Context("find by identity", func() {
		It("finds an exact match", func() {
			e, err := model.NewEquipmentFromCard(testCard("CHEM-BC-PETRO", "CentrifugalPump", "P-101"))
			Expect(err).To(BeNil())
			Expect(s.Equipment().Upsert(context.TODO(), e)).To(BeNil())

			found, err := s.Equipment().FindByIdentity(context.TODO(), "CHEM-BC-PETRO", "CentrifugalPump", "P-101")
			Expect(err).To(BeNil())
			Expect(found).To(HaveLen(1))
		})

		It("returns an empty list when nothing matches", func() {
			found, err := s.Equipment().FindByIdentity(context.TODO(), "CHEM-BC-PETRO", "CentrifugalPump", "P-999")
			Expect(err).To(BeNil())
			Expect(found).To(BeEmpty())
		})

		It("round-trips the full card document", func() {
			card := testCard("CHEM-BC-PETRO", "CentrifugalPump", "P-101")
			e, err := model.NewEquipmentFromCard(card)
			Expect(err).To(BeNil())
			Expect(s.Equipment().Upsert(context.TODO(), e)).To(BeNil())

			found, err := s.Equipment().FindByIdentity(context.TODO(), "CHEM-BC-PETRO", "CentrifugalPump", "P-101")
			Expect(err).To(BeNil())
			Expect(found).To(HaveLen(1))

			restored, err := found[0].ToApiCard()
			Expect(err).To(BeNil())
			Expect(restored.Tag).To(Equal(card.Tag))
			Expect(restored.Specifications).To(HaveKey("ratedFlow"))
			Expect(restored.Metadata.ValidationScore).To(Equal(85.0))
		})
	})

	Context("backend", func() {
		It("serves identity reads and batch writes through the gateway", func() {
			backend := store.NewDataStoreBackend(s)
			gateway := store.NewGateway(backend, store.NewCircuitBreaker(5, 30*time.Second), 3)

			items := []store.Record{
				store.CardRecord(testCard("CHEM-BC-PETRO", "CentrifugalPump", "P-101")),
				store.CardRecord(testCard("CHEM-BC-PETRO", "CentrifugalPump", "P-102")),
			}
			result, err := gateway.BatchWrite(context.TODO(), store.StatementUpsertEquipment, items, 500)
			Expect(err).To(BeNil())
			Expect(result.Processed).To(Equal(2))
			Expect(result.Failed).To(Equal(0))

			records, err := gateway.Read(context.TODO(), store.QueryEquipmentByIdentity,
				store.IdentityParams("CHEM-BC-PETRO", "CentrifugalPump", "P-101"))
			Expect(err).To(BeNil())
			Expect(records).To(HaveLen(1))
			Expect(records[0]["tag"]).To(Equal("P-101"))
		})
	})
})
