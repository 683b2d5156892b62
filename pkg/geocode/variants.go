package geocode

import "strings"

// neighborhoodSuffixes are the administrative-unit endings that mark an
// address as already neighborhood-qualified.
var neighborhoodSuffixes = []string{"동", "읍", "면", "리"}

// Variants generates the ordered list of address forms to try against the
// geocoder. The literal address goes first; later variants improve the hit
// rate for partially qualified input. Duplicates are removed preserving
// order.
func Variants(address string) []string {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return nil
	}

	candidates := []string{
		trimmed,
		stripAdminSuffixes(trimmed),
		appendNeighborhood(trimmed),
	}

	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// stripAdminSuffixes drops city/ward/neighborhood unit markers so that
// "서울시 강남구 삼성동" also gets tried as "서울 강남 삼성동".
func stripAdminSuffixes(addr string) string {
	r := strings.NewReplacer("시 ", " ", "구 ", " ", "동 ", " ")
	return strings.Join(strings.Fields(r.Replace(addr)), " ")
}

// appendNeighborhood adds a 동 suffix when the address does not already end
// in a neighborhood-level unit.
func appendNeighborhood(addr string) string {
	for _, suffix := range neighborhoodSuffixes {
		if strings.HasSuffix(addr, suffix) {
			return addr
		}
	}
	return addr + "동"
}
