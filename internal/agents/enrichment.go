package agents

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"regexp"
	"strings"
	"time"

	api "github.com/plantforge/equipment-pipeline/api/v1alpha1"
)

const enrichmentAgentID = "enrichment-agent"

// canonicalPrefixes maps component class fragments to ISA tag prefixes. The
// first matching fragment wins; matching is case-insensitive on the class name.
var canonicalPrefixes = []struct {
	fragment string
	prefix   string
}{
	{"pump", "P"},
	{"compressor", "K"},
	{"blower", "K"},
	{"exchanger", "E"},
	{"condenser", "E"},
	{"reboiler", "E"},
	{"tank", "TK"},
	{"vessel", "V"},
	{"drum", "V"},
	{"column", "C"},
	{"tower", "C"},
	{"reactor", "R"},
	{"furnace", "H"},
	{"heater", "H"},
	{"filter", "F"},
	{"valve", "XV"},
	{"agitator", "A"},
	{"mixer", "A"},
}

const defaultTagPrefix = "EQ"

var tagSuffixPattern = regexp.MustCompile(`-([0-9]{3})$`)

type EnrichmentInput struct {
	Card     *api.EquipmentCard
	Research *api.ResearchReport
}

// EnrichmentAgent backfills missing card fields from a research report. A
// present, non-empty value on the card is never overwritten.
type EnrichmentAgent struct{}

func NewEnrichmentAgent() *EnrichmentAgent {
	return &EnrichmentAgent{}
}

func (a *EnrichmentAgent) ID() string {
	return enrichmentAgentID
}

func (a *EnrichmentAgent) Execute(input EnrichmentInput) (*api.EquipmentCard, error) {
	if input.Card == nil {
		return nil, NewErrMissingCard(enrichmentAgentID)
	}
	if input.Research == nil {
		return nil, NewErrMissingResearch()
	}

	card := input.Card
	research := input.Research

	if len(card.Manufacturers) == 0 && len(research.Manufacturers) > 0 {
		card.Manufacturers = append([]string(nil), research.Manufacturers...)
	}
	if len(card.Standards) == 0 && len(research.Standards) > 0 {
		card.Standards = append([]string(nil), research.Standards...)
	}
	if len(card.Nozzles) == 0 && len(research.NozzleConfigs) > 0 {
		card.Nozzles = append([]api.Nozzle(nil), research.NozzleConfigs...)
	}

	// Materials merge by key: only keys absent from the card are filled in.
	if len(research.Materials) > 0 {
		if card.Materials == nil {
			card.Materials = map[string]string{}
		}
		for k, v := range research.Materials {
			if _, ok := card.Materials[k]; !ok {
				card.Materials[k] = v
			}
		}
	}
	if len(research.Specifications) > 0 {
		if card.Specifications == nil {
			card.Specifications = map[string]api.Quantity{}
		}
		for k, v := range research.Specifications {
			if _, ok := card.Specifications[k]; !ok {
				card.Specifications[k] = v
			}
		}
	}

	if card.ComponentClassURI == "" && research.PcaURI != "" {
		card.ComponentClassURI = research.PcaURI
	}

	card.Tag = canonicalTag(card)

	if strings.TrimSpace(card.Description) == "" {
		card.Description = buildDescription(card)
	}

	now := time.Now().UTC()
	card.Metadata.UpdatedAt = &now

	return card, nil
}

// canonicalTag corrects the tag prefix to the canonical table entry for the
// card's component class. An existing numeric suffix is preserved untouched;
// a missing one is derived deterministically from (facility, componentClass).
func canonicalTag(card *api.EquipmentCard) string {
	prefix := defaultTagPrefix
	class := strings.ToLower(card.ComponentClass)
	for _, entry := range canonicalPrefixes {
		if strings.Contains(class, entry.fragment) {
			prefix = entry.prefix
			break
		}
	}

	if m := tagSuffixPattern.FindStringSubmatch(card.Tag); m != nil {
		return fmt.Sprintf("%s-%s", prefix, m[1])
	}
	return fmt.Sprintf("%s-%03d", prefix, deriveTagNumber(card.Facility, card.ComponentClass))
}

// deriveTagNumber folds a hash of (facility, componentClass) into 100-999.
func deriveTagNumber(facility, componentClass string) int {
	h := sha256.Sum256([]byte(facility + "|" + componentClass))
	n := binary.BigEndian.Uint32(h[:4])
	return int(n%900) + 100
}

// buildDescription assembles a substantive description from what the card
// knows about itself. Never a placeholder.
func buildDescription(card *api.EquipmentCard) string {
	var b strings.Builder
	b.WriteString(humanizeClass(card.ComponentClass))
	if card.Facility != "" {
		fmt.Fprintf(&b, " in %s service", card.Facility)
	}
	if len(card.Standards) > 0 {
		limit := len(card.Standards)
		if limit > 3 {
			limit = 3
		}
		fmt.Fprintf(&b, ", specified per %s", strings.Join(card.Standards[:limit], ", "))
	}
	if card.OperatingConds.DesignPressure != nil {
		dp := card.OperatingConds.DesignPressure
		fmt.Fprintf(&b, ", design pressure %.4g %s", dp.Value, dp.Unit)
	}
	b.WriteString(".")
	return b.String()
}

// humanizeClass splits a CamelCase class name into words.
func humanizeClass(class string) string {
	if class == "" {
		return "Equipment item"
	}
	var b strings.Builder
	for i, r := range class {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
