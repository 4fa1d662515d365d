// Package cost converts raw character counts into billable characters and prices them
// for reporting.
package cost

import (
	"math"
	"math/bits"
)

// Service names a third-party language provider.
type Service string

const (
	ServiceAzure             Service = "Azure"
	ServiceGoogle            Service = "Google"
	ServiceAmazon            Service = "Amazon"
	ServiceWatson            Service = "Watson"
	ServiceNaver             Service = "Naver"
	ServiceDeepL             Service = "DeepL"
	ServiceBaidu             Service = "Baidu"
	ServiceYoudao            Service = "Youdao"
	ServiceForvo             Service = "Forvo"
	ServiceCereProc          Service = "CereProc"
	ServiceVocalWare         Service = "VocalWare"
	ServiceElevenLabs        Service = "ElevenLabs"
	ServiceOpenAI            Service = "OpenAI"
	ServiceEpitran           Service = "Epitran"
	ServiceEasyPronunciation Service = "EasyPronunciation"
	ServiceSpacy             Service = "Spacy"
)

// RequestType is the kind of call made against a provider.
type RequestType string

const (
	RequestTranslation     RequestType = "translation"
	RequestTransliteration RequestType = "transliteration"
	RequestDictionary      RequestType = "dictionary"
	RequestAudio           RequestType = "audio"
	RequestBreakdown       RequestType = "breakdown"
	RequestTokenization    RequestType = "tokenization"
)

// Language is a language code as sent by clients, e.g. "zh_cn".
type Language string

// cjkLanguages are billed as double-byte by Azure's speech service.
var cjkLanguages = map[Language]struct{}{
	"zh_cn":  {},
	"zh_tw":  {},
	"zh_lit": {},
	"ja":     {},
	"ko":     {},
	"yue":    {},
}

// IsCJK reports whether the language uses a double-byte script.
func IsCJK(lang Language) bool {
	_, ok := cjkLanguages[lang]
	return ok
}

const (
	breakdownMultiplier = 3 // translation + transliteration + tokenization
	cjkAudioMultiplier  = 2
	phonemeMultiplier   = 6
)

// MaxRawCharacters is the largest raw count a single call may report. Its billable
// count stays within a ledger counter whatever multiplier applies.
const MaxRawCharacters uint64 = math.MaxInt64 / phonemeMultiplier

// Normalize returns the billable character count for a call. The result saturates at
// math.MaxUint64 instead of wrapping.
func Normalize(service Service, requestType RequestType, lang Language, raw uint64) uint64 {
	switch {
	case requestType == RequestBreakdown:
		return multiply(raw, breakdownMultiplier)
	case service == ServiceAzure && requestType == RequestAudio && IsCJK(lang):
		return multiply(raw, cjkAudioMultiplier)
	case service == ServiceNaver && requestType == RequestAudio:
		return multiply(raw, phonemeMultiplier)
	default:
		return raw
	}
}

func multiply(raw, factor uint64) uint64 {
	hi, lo := bits.Mul64(raw, factor)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}
