package utils

import "strings"

var umlautReplacer = strings.NewReplacer(
	"ä", "ae",
	"ö", "oe",
	"ü", "ue",
	"ß", "ss",
)

// NormalizeProductKey maps a display product name to the inventory key:
// lower-cased, German diacritics folded, whitespace removed.
// "Gerstenstroh" -> "gerstenstroh", "Großballen Heu" -> "grossballenheu".
func NormalizeProductKey(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = umlautReplacer.Replace(key)
	key = strings.Join(strings.Fields(key), "")
	return key
}
