package cr35

import "strings"

// parseModeList parses the ModeList payload: INI-like text with sections
// [Mode-{<id>}] and key/value pairs. The preferred display name per
// section is ModeName_en, falling back to ModeName; the result entry is
// "<id> - <name>". The device may append binary padding after the text,
// so parsing stops at the first NUL, and an XML-ish tail ("<!--...")
// terminates the scan. Malformed sections are skipped silently.
func parseModeList(data []byte) []string {
	text := decodeLatin1(data)

	if nul := strings.IndexByte(text, 0); nul >= 0 {
		text = text[:nul]
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var result []string
	var sectionID, nameEN, name string
	inModeSection := false

	flushSection := func() {
		if !inModeSection {
			return
		}
		n := nameEN
		if n == "" {
			n = name
		}
		n = strings.TrimSpace(n)
		if n != "" {
			if sectionID != "" {
				n = sectionID + " - " + n
			}
			result = append(result, n)
		}
		sectionID, nameEN, name = "", "", ""
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "<!--") {
			break
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flushSection()
			inModeSection = strings.HasPrefix(line, "[Mode-")
			if inModeSection {
				// Example: [Mode-{00000001}]
				l := strings.Index(line, "{")
				r := strings.Index(line, "}")
				if l >= 0 && r > l {
					sectionID = strings.TrimSpace(line[l+1 : r])
				} else {
					inModeSection = false // no braced id: not a mode section
				}
			}
			continue
		}

		if !inModeSection {
			continue
		}

		eq := strings.Index(line, "=")
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])

		switch {
		case strings.EqualFold(key, "ModeName_en"):
			nameEN = value
		case strings.EqualFold(key, "ModeName"):
			name = value
		}
	}
	flushSection()

	// De-dup while preserving first-seen order.
	seen := make(map[string]struct{}, len(result))
	var unique []string
	for _, n := range result {
		k := strings.TrimSpace(n)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}
	return unique
}
