package script

import "net/url"

// LookupURL returns an external dictionary page for word, or "" when v has
// no dictionary site.
func (v Variant) LookupURL(word string) string {
	q := url.QueryEscape(word)
	switch v {
	case Korean:
		return "https://korean.dict.naver.com/koendict/#/search?query=" + q + "&range=word"
	case Mandarin:
		return "https://chinese.yabla.com/chinese-english-pinyin-dictionary.php?define=" + q
	case Cantonese:
		return "https://cantonese.org/search.php?q=" + q
	default:
		return ""
	}
}
