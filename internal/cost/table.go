package cost

// TableEntry is the price of one billable character for a (service, request type).
type TableEntry struct {
	Service          Service
	RequestType      RequestType
	CostPerCharacter float64 // USD
}

type tableKey struct {
	service     Service
	requestType RequestType
}

// Table prices billable characters. It is only used for reporting, never for quota
// enforcement.
type Table struct {
	entries map[tableKey]float64
}

// NewTable builds a table from entries; later entries win on duplicates.
func NewTable(entries []TableEntry) *Table {
	t := &Table{entries: make(map[tableKey]float64, len(entries))}
	for _, e := range entries {
		t.entries[tableKey{e.Service, e.RequestType}] = e.CostPerCharacter
	}
	return t
}

// DefaultTable returns list prices of the supported providers.
func DefaultTable() *Table {
	return NewTable([]TableEntry{
		{ServiceAzure, RequestTranslation, 10.0 / 1_000_000},
		{ServiceAzure, RequestTransliteration, 10.0 / 1_000_000},
		{ServiceAzure, RequestDictionary, 10.0 / 1_000_000},
		{ServiceAzure, RequestAudio, 16.0 / 1_000_000},
		{ServiceGoogle, RequestTranslation, 20.0 / 1_000_000},
		{ServiceGoogle, RequestAudio, 16.0 / 1_000_000},
		{ServiceAmazon, RequestTranslation, 15.0 / 1_000_000},
		{ServiceAmazon, RequestAudio, 16.0 / 1_000_000},
		{ServiceWatson, RequestTranslation, 20.0 / 1_000_000},
		{ServiceWatson, RequestAudio, 20.0 / 1_000_000},
		{ServiceNaver, RequestTranslation, 20.0 / 1_000_000},
		{ServiceNaver, RequestAudio, 4.0 / 1_000_000},
		{ServiceDeepL, RequestTranslation, 25.0 / 1_000_000},
		{ServiceBaidu, RequestTranslation, 7.0 / 1_000_000},
		{ServiceYoudao, RequestTranslation, 7.0 / 1_000_000},
		{ServiceElevenLabs, RequestAudio, 180.0 / 1_000_000},
		{ServiceOpenAI, RequestAudio, 15.0 / 1_000_000},
	})
}

// CostPerCharacter returns the unit price and whether the pair is priced at all.
func (t *Table) CostPerCharacter(service Service, requestType RequestType) (float64, bool) {
	c, ok := t.entries[tableKey{service, requestType}]
	return c, ok
}

// Cost prices a billable character count; unpriced pairs cost nothing.
func (t *Table) Cost(service Service, requestType RequestType, billable uint64) float64 {
	c, ok := t.CostPerCharacter(service, requestType)
	if !ok {
		return 0
	}
	return c * float64(billable)
}
