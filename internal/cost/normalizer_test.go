package cost

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		service     Service
		requestType RequestType
		lang        Language
		raw         uint64
		expected    uint64
	}{
		{"azure audio chinese doubles", ServiceAzure, RequestAudio, "zh_cn", 10, 20},
		{"azure audio japanese doubles", ServiceAzure, RequestAudio, "ja", 10, 20},
		{"azure audio cantonese doubles", ServiceAzure, RequestAudio, "yue", 10, 20},
		{"azure audio english unchanged", ServiceAzure, RequestAudio, "en_us", 10, 10},
		{"azure translation chinese unchanged", ServiceAzure, RequestTranslation, "zh_cn", 10, 10},
		{"google audio chinese unchanged", ServiceGoogle, RequestAudio, "zh_cn", 10, 10},
		{"naver audio is per phoneme", ServiceNaver, RequestAudio, "ko", 10, 60},
		{"naver translation unchanged", ServiceNaver, RequestTranslation, "ko", 10, 10},
		{"breakdown triples", ServiceGoogle, RequestBreakdown, "fr", 10, 30},
		{"breakdown wins over cjk audio rule", ServiceAzure, RequestBreakdown, "zh_cn", 10, 30},
		{"zero stays zero", ServiceNaver, RequestAudio, "ko", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.service, tt.requestType, tt.lang, tt.raw))
		})
	}
}

func TestNormalize_BreakdownAnyService(t *testing.T) {
	services := []Service{ServiceAzure, ServiceGoogle, ServiceNaver, ServiceDeepL, Service("Unknown")}
	for _, s := range services {
		assert.Equal(t, uint64(30), Normalize(s, RequestBreakdown, "", 10), "service %s", s)
	}
}

func TestTable_Cost(t *testing.T) {
	table := NewTable([]TableEntry{
		{ServiceAzure, RequestTranslation, 0.00001},
		{ServiceAzure, RequestTranslation, 0.00002},
	})

	c, ok := table.CostPerCharacter(ServiceAzure, RequestTranslation)
	assert.True(t, ok)
	assert.InDelta(t, 0.00002, c, 1e-12)

	assert.InDelta(t, 0.02, table.Cost(ServiceAzure, RequestTranslation, 1000), 1e-9)
	assert.Zero(t, table.Cost(ServiceGoogle, RequestAudio, 1000))
}

func TestDefaultTable_PricesAudio(t *testing.T) {
	table := DefaultTable()
	_, ok := table.CostPerCharacter(ServiceAzure, RequestAudio)
	assert.True(t, ok)
}

func TestNormalize_SaturatesInsteadOfWrapping(t *testing.T) {
	assert.Equal(t, uint64(math.MaxUint64), Normalize(ServiceAzure, RequestAudio, "ja", 1<<63))
	assert.Equal(t, uint64(math.MaxUint64), Normalize(ServiceNaver, RequestAudio, "ko", math.MaxUint64/5))
	assert.Equal(t, uint64(math.MaxUint64), Normalize(ServiceGoogle, RequestBreakdown, "fr", math.MaxUint64/2))

	assert.Equal(t, MaxRawCharacters*6, Normalize(ServiceNaver, RequestAudio, "ko", MaxRawCharacters))
	assert.LessOrEqual(t, MaxRawCharacters*6, uint64(math.MaxInt64))
}
