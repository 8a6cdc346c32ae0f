package bot

import (
	"unicode"

	"lingorelay/pkg/config"
)

// Vietnamese letters that do not occur in plain ASCII text. Matching any of
// them is a strong signal the body is Vietnamese.
const vietnameseLetters = "ăâđêôơưáàảãạấầẩẫậắằẳẵặéèẻẽẹếềểễệíìỉĩịóòỏõọốồổỗộớờởỡợúùủũụứừửữựýỳỷỹỵ"

var vietnameseSet = func() map[rune]struct{} {
	set := make(map[rune]struct{})
	for _, r := range vietnameseLetters {
		set[r] = struct{}{}
	}
	return set
}()

// DetectPair selects the language pair for a message body: CJK ideographs
// route to the configured "zh" source pair, Vietnamese diacritics to the
// "vi" source pair, and anything else to the currently active pair. A
// detected language without a matching configured pair also falls back to
// the active pair.
func (r *Runtime) DetectPair(body string) config.Pair {
	cfg := r.Config()

	if containsCJK(body) {
		if pair, ok := cfg.PairBySourcePrefix("zh"); ok {
			return pair
		}
		return r.CurrentPair()
	}
	if containsVietnamese(body) {
		if pair, ok := cfg.PairBySourcePrefix("vi"); ok {
			return pair
		}
		return r.CurrentPair()
	}
	return r.CurrentPair()
}

func containsCJK(text string) bool {
	for _, r := range text {
		if (r >= 0x3400 && r <= 0x9FFF) || (r >= 0xF900 && r <= 0xFAFF) {
			return true
		}
	}
	return false
}

func containsVietnamese(text string) bool {
	for _, r := range text {
		if _, ok := vietnameseSet[unicode.ToLower(r)]; ok {
			return true
		}
	}
	return false
}
