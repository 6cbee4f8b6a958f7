package i18n

import (
	"embed"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

//go:embed resources/*.yml
var resourcesFS embed.FS

var state = struct {
	mu           sync.Mutex
	translations map[string]map[string]string
	loaded       map[string]bool
}{
	translations: make(map[string]map[string]string),
	loaded:       make(map[string]bool),
}

func load(lang string) {
	data, err := resourcesFS.ReadFile(fmt.Sprintf("resources/%s.yml", lang))
	if err != nil {
		log.WithError(err).Errorln("cant load i18n")
		return
	}
	translations := make(map[string]string)
	if err := yaml.Unmarshal(data, &translations); err != nil {
		log.WithError(err).Errorln("cant unmarshal i18n")
		return
	}
	state.translations[lang] = translations
}

// Get translates key into lang; English is the key itself.
func Get(key, lang string) string {
	if lang == "en" || lang == "" {
		return key
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if !state.loaded[lang] {
		load(lang)
		state.loaded[lang] = true
	}
	if res, ok := state.translations[lang][key]; ok {
		return res
	}
	return key
}
