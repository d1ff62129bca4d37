package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestNew_Matching(t *testing.T) {
	tests := []struct {
		name    string
		locales []string
		want    language.Tag
	}{
		{"no locale", nil, language.English},
		{"exact", []string{"nl"}, language.Dutch},
		{"region", []string{"de-AT"}, language.German},
		{"accept-language", []string{"fr-FR,nl;q=0.8,en;q=0.5"}, language.Dutch},
		{"unsupported", []string{"ja"}, language.English},
		{"garbage", []string{";;;"}, language.English},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.locales...).Tag())
		})
	}
}

func TestFormat(t *testing.T) {
	en := New("en")
	assert.Equal(t, "Add Layer from OGC:WMS", en.Format(MsgTitle, Args{"serviceType": "WMS"}))
	assert.Equal(t, "Error. 404 Not Found", en.Format(MsgError, Args{"msg": "404 Not Found"}))
	assert.Equal(t, "No Title", en.Format(MsgNoLayerTitle, nil))
	assert.Equal(t, "unknown.key", en.Format("unknown.key", nil))

	nl := New("nl")
	assert.Equal(t, "WFS-URL", nl.Format(MsgInputFieldLabel, Args{"serviceType": "WFS"}))
	assert.Equal(t, "Laag 'Wegen' toegevoegd", nl.Format(MsgLayerAdded, Args{"title": "Wegen"}))
	assert.Equal(t, "Keine Layer auf der Karte", New("de").Format(MsgNoLayers, nil))
}
