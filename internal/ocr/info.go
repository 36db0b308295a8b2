package ocr

// EngineInfo describes the state of one OCR backend.
type EngineInfo struct {
	Name        string   `json:"name"`
	Available   bool     `json:"available"`
	Initialized bool     `json:"initialized,omitempty"`
	Version     string   `json:"version,omitempty"`
	Backend     string   `json:"backend"`
	Languages   []string `json:"languages,omitempty"`
	Error       string   `json:"error,omitempty"`
}

type infoProvider interface {
	Info() EngineInfo
}

type engineUnwrapper interface {
	Unwrap() Engine
}

// Info reports availability for each engine. Wrappers such as WithTimeout
// are looked through; engines without diagnostics report only their name.
func Info(engines ...Engine) []EngineInfo {
	infos := make([]EngineInfo, 0, len(engines))
	for _, e := range engines {
		for {
			u, ok := e.(engineUnwrapper)
			if !ok {
				break
			}
			e = u.Unwrap()
		}

		if p, ok := e.(infoProvider); ok {
			infos = append(infos, p.Info())
			continue
		}
		infos = append(infos, EngineInfo{Name: e.Name(), Available: true, Backend: "custom"})
	}
	return infos
}
