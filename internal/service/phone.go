package service

import "strings"

// NormalizePhone reduces a raw phone string to canonical digits with the
// Brazilian country code. 10- and 11-digit national numbers get a "55"
// prefix; already-prefixed numbers pass through. Returns "" when no
// digits remain.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if len(digits) == 10 || len(digits) == 11 {
		return "55" + digits
	}
	return digits
}

// PhoneVariants returns the digit strings a stored phone may match under:
// the canonical form, the national form without country code, and the
// mobile forms with the ninth digit inserted or removed. Used for suffix
// matching against free-text phone columns.
func PhoneVariants(canonical string) []string {
	if canonical == "" {
		return nil
	}
	seen := map[string]bool{canonical: true}
	variants := []string{canonical}
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}

	local := canonical
	if strings.HasPrefix(canonical, "55") && len(canonical) >= 12 {
		local = canonical[2:]
	}
	add(local)

	// DDD + 8 digits: insert the mobile ninth digit after the area code.
	if len(local) == 10 {
		with9 := local[:2] + "9" + local[2:]
		add(with9)
		add("55" + with9)
	}
	// DDD + 9 digits starting with 9: drop it.
	if len(local) == 11 && local[2] == '9' {
		without9 := local[:2] + local[3:]
		add(without9)
		add("55" + without9)
	}
	return variants
}
