package bsp

import "strings"

// Entity is one key/value block from the entities lump.
type Entity map[string]string

// Entities parses the entities text lump into key/value blocks.
func (m *RawMap) Entities() []Entity {
	if m.entities == nil {
		m.entities = parseEntities(string(m.lumpBytes(LumpEntities)))
	}
	return m.entities
}

func parseEntities(str string) []Entity {
	blocks := strings.Split(str, "}")
	entities := make([]Entity, 0, len(blocks))

	for _, block := range blocks {
		block = strings.TrimPrefix(strings.TrimSpace(block), "{")
		kvEntry := strings.Split(block, "\n")

		data := make(Entity)

		for _, entry := range kvEntry {
			kv := strings.Split(entry, "\"")
			if len(kv) != 4 {
				continue
			}

			data[kv[1]] = kv[3]
		}

		if len(data) > 0 {
			entities = append(entities, data)
		}
	}

	return entities
}
