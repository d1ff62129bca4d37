// Package i18n resolves message keys with named placeholders to display
// strings in the active locale.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
)

// Message keys used by the add-layer dialog.
const (
	MsgTitle           = "addwmslayermodal.title"
	MsgNoLayerTitle    = "addwmslayermodal.nolayertitle"
	MsgError           = "addwmslayermodal.errormsg"
	MsgCORSError       = "addwmslayermodal.corserror"
	MsgInputFieldLabel = "addwmslayermodal.inputfieldlabel"
	MsgConnectButton   = "addwmslayermodal.connectbutton"
	MsgCloseButton     = "addwmslayermodal.closebutton"
	MsgLoading         = "addwmslayermodal.loading"
)

// Message keys used by the map layer list.
const (
	MsgLayerAdded   = "maplayers.added"
	MsgNoLayers     = "maplayers.empty"
	MsgNoLayersHint = "maplayers.emptyhint"
)

// Args holds named placeholder values, e.g. {"serviceType": "WMS"}.
type Args map[string]string

// Localizer formats messages for one locale.
type Localizer interface {
	Format(key string, args Args) string
	Tag() language.Tag
}

var catalog = map[language.Tag]map[string]string{
	language.English: {
		MsgTitle:           "Add Layer from OGC:{serviceType}",
		MsgNoLayerTitle:    "No Title",
		MsgError:           "Error. {msg}",
		MsgCORSError:       "Could not connect to GeoServer. Please verify that the server is online and CORS is enabled.",
		MsgInputFieldLabel: "{serviceType} URL",
		MsgConnectButton:   "Connect",
		MsgCloseButton:     "Close",
		MsgLoading:         "Loading layers...",
		MsgLayerAdded:      "Layer '{title}' added",
		MsgNoLayers:        "No layers on the map",
		MsgNoLayersHint:    "Add a layer from an OGC service",
	},
	language.Dutch: {
		MsgTitle:           "Laag toevoegen uit OGC:{serviceType}",
		MsgNoLayerTitle:    "Geen titel",
		MsgError:           "Fout. {msg}",
		MsgCORSError:       "Kan geen verbinding maken met GeoServer. Controleer of de server online is en CORS is ingeschakeld.",
		MsgInputFieldLabel: "{serviceType}-URL",
		MsgConnectButton:   "Verbinden",
		MsgCloseButton:     "Sluiten",
		MsgLoading:         "Lagen laden...",
		MsgLayerAdded:      "Laag '{title}' toegevoegd",
		MsgNoLayers:        "Geen lagen op de kaart",
		MsgNoLayersHint:    "Voeg een laag toe uit een OGC-service",
	},
	language.German: {
		MsgTitle:           "Layer aus OGC:{serviceType} hinzufügen",
		MsgNoLayerTitle:    "Kein Titel",
		MsgError:           "Fehler. {msg}",
		MsgCORSError:       "Keine Verbindung zu GeoServer. Bitte prüfen Sie, ob der Server erreichbar und CORS aktiviert ist.",
		MsgInputFieldLabel: "{serviceType}-URL",
		MsgConnectButton:   "Verbinden",
		MsgCloseButton:     "Schließen",
		MsgLoading:         "Layer werden geladen...",
		MsgLayerAdded:      "Layer '{title}' hinzugefügt",
		MsgNoLayers:        "Keine Layer auf der Karte",
		MsgNoLayersHint:    "Fügen Sie einen Layer aus einem OGC-Dienst hinzu",
	},
}

var supported = []language.Tag{language.English, language.Dutch, language.German}

var matcher = language.NewMatcher(supported)

type localizer struct {
	tag      language.Tag
	messages map[string]string
}

// New returns a localizer for the best supported match of the given
// locales (BCP 47 tags or Accept-Language values). English is the fallback.
func New(locales ...string) Localizer {
	var tags []language.Tag
	for _, l := range locales {
		if l == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(l)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	_, idx, _ := matcher.Match(tags...)
	tag := supported[idx]
	return &localizer{tag: tag, messages: catalog[tag]}
}

func (l *localizer) Tag() language.Tag {
	return l.tag
}

// Format resolves key and substitutes {name} placeholders. Unknown keys
// fall back to English, then to the key itself.
func (l *localizer) Format(key string, args Args) string {
	msg, ok := l.messages[key]
	if !ok {
		msg, ok = catalog[language.English][key]
		if !ok {
			msg = key
		}
	}
	if len(args) == 0 {
		return msg
	}
	pairs := make([]string, 0, len(args)*2)
	for k, v := range args {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}
