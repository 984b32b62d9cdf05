package inference

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"barrel-market-api/internal/model"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ExtractObject pulls one JSON object out of free-form model text. It tries,
// in order: the whole text, the first fenced code block, and the substring
// from the first '{' to the last '}'.
func ExtractObject(raw string) (map[string]interface{}, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", model.ErrExtraction)
	}

	if obj, ok := decodeObject(text); ok {
		return obj, nil
	}
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		if obj, ok := decodeObject(strings.TrimSpace(m[1])); ok {
			return obj, nil
		}
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in response", model.ErrExtraction)
	}
	if obj, ok := decodeObject(text[start : end+1]); ok {
		return obj, nil
	}
	return nil, fmt.Errorf("%w: malformed JSON object in response", model.ErrExtraction)
}

func decodeObject(s string) (map[string]interface{}, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil || obj == nil {
		return nil, false
	}
	// trailing text means this is not the whole object; let the next fallback try
	if strings.TrimSpace(s[dec.InputOffset():]) != "" {
		return nil, false
	}
	return obj, true
}

// ParseListing extracts and validates a listing from raw model text.
// Extraction problems wrap model.ErrExtraction; missing or sentinel fields
// wrap model.ErrValidation.
func ParseListing(raw string) (*model.Listing, error) {
	obj, err := ExtractObject(raw)
	if err != nil {
		return nil, err
	}
	if _, ok := obj["minecraft_id"]; !ok {
		if v, ok := obj["minecraftId"]; ok {
			obj["minecraft_id"] = v
		}
	}
	if err := listingSchema.Validate(obj); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}

	l := &model.Listing{
		Name:        strings.TrimSpace(obj["name"].(string)),
		MinecraftID: strings.TrimSpace(obj["minecraft_id"].(string)),
		Seller:      normalizeSeller(obj["seller"]),
	}
	if l.Name == "" || l.MinecraftID == "" || l.Name == "UNKNOWN" || l.MinecraftID == "UNKNOWN" {
		return nil, fmt.Errorf("%w: name and minecraft_id are required", model.ErrValidation)
	}

	if l.Price, err = number(obj["price"], "price"); err != nil {
		return nil, err
	}
	if l.Price <= 0 {
		return nil, fmt.Errorf("%w: price must be positive, got %v", model.ErrValidation, l.Price)
	}
	if l.Quantity, err = number(obj["quantity"], "quantity"); err != nil {
		return nil, err
	}
	if l.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive, got %v", model.ErrValidation, l.Quantity)
	}

	coords := obj["coordinates"].(map[string]interface{})
	axes := [3]*int{&l.Coordinates.X, &l.Coordinates.Y, &l.Coordinates.Z}
	for i, name := range []string{"x", "y", "z"} {
		v, err := number(coords[name], "coordinates."+name)
		if err != nil {
			return nil, err
		}
		*axes[i] = int(math.Round(v))
	}

	l.TypeID, l.TypeRu = normalizeType(stringField(obj["typeId"]), stringField(obj["typeRu"]))
	return l, nil
}

// number coerces a JSON number or numeric string.
func number(v interface{}, field string) (float64, error) {
	var f float64
	var err error
	switch n := v.(type) {
	case json.Number:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	case float64:
		f = n
	default:
		err = fmt.Errorf("unexpected type %T", v)
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s is not numeric: %v", model.ErrValidation, field, v)
	}
	return f, nil
}

func stringField(v interface{}) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func normalizeSeller(v interface{}) string {
	s := stringField(v)
	switch strings.ToLower(s) {
	case "", "none", "null", "unknown":
		return model.UnknownSeller
	}
	return s
}

// itemTypes maps a type id to its display label.
var itemTypes = map[string]string{
	"eat":       "Еда",
	"other":     "Разное",
	"valuables": "Ценности",
	"blocks":    "Блоки",
	"books":     "Книги",
	"armors":    "Броня и оружие",
}

var labelToID = func() map[string]string {
	lower := cases.Lower(language.Russian)
	m := make(map[string]string, len(itemTypes)+1)
	for id, label := range itemTypes {
		m[lower.String(label)] = id
	}
	m["другое"] = "other"
	return m
}()

// normalizeType resolves the category from typeId, falling back to the
// Russian label, then to "other". Casers are stateful, so each call builds
// its own.
func normalizeType(typeID, typeRu string) (string, string) {
	id := cases.Lower(language.Und).String(typeID)
	if _, ok := itemTypes[id]; !ok {
		id = labelToID[cases.Lower(language.Russian).String(typeRu)]
		if id == "" {
			id = "other"
		}
	}
	return id, itemTypes[id]
}
