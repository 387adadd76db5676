package coverage

import (
	"fmt"
	"strconv"
	"strings"
)

// NoSection marks a commodity whose HS2 chapter has no SITC section.
const NoSection = -1

// Record is the coverage lookup row for one commodity (HS2 chapter).
type Record struct {
	Commodity    int     `json:"commodity"`
	HS2Chapter   int     `json:"hs2_chapter"`
	SITCSection  int     `json:"sitc_section"`
	Category     string  `json:"category"`
	Description  string  `json:"description"`
	TotalYears   int     `json:"total_years"`
	CoveredYears int     `json:"covered_years"`
	CoveragePct  float64 `json:"coverage_pct"`
	Class        Class   `json:"coverage_class"`
}

// Default is the record used when the lookup has nothing for a commodity:
// no coverage at 0%, so risk adjustment still runs on the cautious path.
func Default(commodity int) Record {
	chapter := ChapterOf(commodity)
	section := SectionFor(chapter)
	return Record{
		Commodity:   commodity,
		HS2Chapter:  chapter,
		SITCSection: section,
		Category:    SectionName(section),
		Description: Describe(chapter),
		CoveragePct: 0,
		Class:       None,
	}
}

// Normalize fills derived fields (chapter, section, category, description)
// that a source left empty.
func (r Record) Normalize() Record {
	if r.HS2Chapter == 0 {
		r.HS2Chapter = ChapterOf(r.Commodity)
	}
	if r.SITCSection == NoSection {
		r.SITCSection = SectionFor(r.HS2Chapter)
	}
	if r.Category == "" {
		r.Category = SectionName(r.SITCSection)
	}
	if r.Description == "" {
		r.Description = Describe(r.HS2Chapter)
	}
	return r
}

// ChapterOf extracts the HS2 chapter from a commodity code: codes below 100
// are already chapters, longer codes use their first two digits.
func ChapterOf(code int) int {
	if code < 100 {
		return code
	}
	s := strconv.Itoa(code)
	ch, _ := strconv.Atoi(s[:2])
	return ch
}

// ParseCommodity parses a commodity code such as "84", "09", "8471" or
// "8471.30". Codes are held as integers, so a leading zero only survives for
// bare chapters: "0901" parses to 901, which ChapterOf reads as chapter 90.
func ParseCommodity(s string) (int, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		// "84.0" style values written by spreadsheet tools.
		if strings.Trim(s[i+1:], "0") == "" {
			s = s[:i]
		} else {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	code, err := strconv.Atoi(s)
	if err != nil || code <= 0 {
		return 0, fmt.Errorf("coverage: invalid commodity code %q", s)
	}
	return code, nil
}

// SectionFor maps an HS2 chapter to its parent SITC section (0-9).
func SectionFor(chapter int) int {
	if s, ok := hs2ToSITC[chapter]; ok {
		return s
	}
	return NoSection
}

// SectionName returns the SITC section label, e.g. "5 Chemicals".
func SectionName(section int) string {
	if n, ok := sitcNames[section]; ok {
		return n
	}
	return "Unknown"
}

// Describe returns the HS2 chapter description.
func Describe(chapter int) string {
	if d, ok := hs2Descriptions[chapter]; ok {
		return d
	}
	return "Unknown"
}

// Sections returns the SITC section labels in section order.
func Sections() []string {
	out := make([]string, 0, len(sitcNames))
	for s := 0; s <= 9; s++ {
		out = append(out, sitcNames[s])
	}
	return out
}

var sitcNames = map[int]string{
	0: "0 Food & live animals",
	1: "1 Beverages & tobacco",
	2: "2 Crude materials",
	3: "3 Fuels",
	4: "4 Animal & vegetable oils",
	5: "5 Chemicals",
	6: "6 Manufactured goods",
	7: "7 Machinery & transport equipment",
	8: "8 Miscellaneous manufactures",
	9: "9 Other commodities",
}

// HMRC reports HS chapters, ONS reports SITC sections.
var hs2ToSITC = map[int]int{
	1: 0, 2: 0, 3: 0, 4: 0, 5: 0, 6: 0, 7: 0, 8: 0, 9: 0, 10: 0,
	11: 0, 12: 0, 13: 0, 14: 0, 15: 0, 16: 0, 17: 0, 18: 0, 19: 0, 20: 0,
	21: 0, 22: 1, 23: 0, 24: 1,
	25: 2, 26: 2, 27: 3,
	28: 5, 29: 5, 30: 5, 31: 5, 32: 5, 33: 5, 34: 5, 35: 5, 36: 5, 37: 5, 38: 5,
	39: 6, 40: 6, 41: 2, 42: 8, 43: 8,
	44: 6, 45: 6, 46: 6, 47: 6, 48: 6, 49: 8, 50: 6,
	51: 6, 52: 6, 53: 6, 54: 6, 55: 6, 56: 6, 57: 6, 58: 6, 59: 6,
	60: 6, 61: 8, 62: 8, 63: 8, 64: 8, 65: 8, 66: 6, 67: 6,
	68: 6, 69: 6, 70: 6, 71: 8, 72: 6, 73: 6, 74: 6, 75: 6, 76: 6,
	78: 6, 79: 6, 80: 6, 81: 6, 82: 6, 83: 6,
	84: 7, 85: 7, 86: 7, 87: 7, 88: 7, 89: 7,
	90: 8, 91: 8, 92: 8, 93: 8, 94: 8, 95: 8, 96: 8, 97: 8,
	99: 9,
}

var hs2Descriptions = map[int]string{
	1: "Live animals", 2: "Meat and edible meat offal", 3: "Fish and crustaceans",
	4: "Dairy produce, eggs, honey", 5: "Products of animal origin", 6: "Live trees and plants",
	7: "Edible vegetables", 8: "Edible fruit and nuts", 9: "Coffee, tea, spices",
	10: "Cereals", 11: "Milling products, malt, starches", 12: "Oil seeds, miscellaneous grains",
	13: "Lac, gums, resins", 14: "Vegetable plaiting materials", 15: "Animal or vegetable fats",
	16: "Preparations of meat or fish", 17: "Sugars and sugar confectionery", 18: "Cocoa and cocoa preparations",
	19: "Preparations of cereals", 20: "Preparations of vegetables, fruit", 21: "Miscellaneous edible preparations",
	22: "Beverages, spirits and vinegar", 23: "Food industry residues", 24: "Tobacco and substitutes",
	25: "Salt, sulphur, earth and stone", 26: "Ores, slag and ash", 27: "Mineral fuels, oils",
	28: "Inorganic chemicals", 29: "Organic chemicals", 30: "Pharmaceutical products",
	31: "Fertilisers", 32: "Tanning or dyeing extracts", 33: "Essential oils and perfumery",
	34: "Soap, washing preparations", 35: "Albuminoidal substances, glues", 36: "Explosives, pyrotechnics",
	37: "Photographic goods", 38: "Miscellaneous chemical products", 39: "Plastics and articles",
	40: "Rubber and articles", 41: "Raw hides, skins and leather", 42: "Articles of leather",
	43: "Furskins and artificial fur", 44: "Wood and articles of wood", 45: "Cork and articles",
	46: "Manufactures of straw", 47: "Pulp of wood", 48: "Paper and paperboard",
	49: "Printed books, newspapers", 50: "Silk", 51: "Wool and fine animal hair",
	52: "Cotton", 53: "Other vegetable textile fibres", 54: "Man-made filaments",
	55: "Man-made staple fibres", 56: "Wadding, felt and nonwovens", 57: "Carpets and textile floor coverings",
	58: "Special woven fabrics", 59: "Impregnated textile fabrics", 60: "Knitted or crocheted fabrics",
	61: "Knitted apparel and accessories", 62: "Woven apparel and accessories", 63: "Other made up textile articles",
	64: "Footwear", 65: "Headgear", 66: "Umbrellas, walking sticks",
	67: "Prepared feathers", 68: "Articles of stone, plaster, cement", 69: "Ceramic products",
	70: "Glass and glassware", 71: "Precious stones and metals", 72: "Iron and steel",
	73: "Articles of iron or steel", 74: "Copper and articles", 75: "Nickel and articles",
	76: "Aluminium and articles", 78: "Lead and articles", 79: "Zinc and articles",
	80: "Tin and articles", 81: "Other base metals", 82: "Tools of base metal",
	83: "Miscellaneous articles of base metal", 84: "Nuclear reactors, boilers, machinery", 85: "Electrical machinery",
	86: "Railway locomotives", 87: "Vehicles other than railway", 88: "Aircraft and spacecraft",
	89: "Ships and boats", 90: "Optical and medical instruments", 91: "Clocks and watches",
	92: "Musical instruments", 93: "Arms and ammunition", 94: "Furniture and bedding",
	95: "Toys, games and sports equipment", 96: "Miscellaneous manufactured articles", 97: "Works of art and antiques",
	99: "Special transactions",
}
