package signature

import (
	"net/url"
	"sort"
	"strings"
)

// nullValue подставляется вместо отсутствующего поля в позиционной строке
const nullValue = "null"

// Fields плоский набор строковых полей уведомления или запроса
type Fields map[string]string

// Get возвращает значение поля и признак его наличия
func (f Fields) Get(key string) (string, bool) {
	v, ok := f[key]
	return v, ok
}

// Without возвращает копию без указанных ключей
func (f Fields) Without(keys ...string) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// CanonicalQuery собирает строку вида k1=v1&k2=v2 из полей с префиксом keyPrefix.
// Ключи сортируются побайтово, значения кодируются как в form-urlencoded (пробел -> "+").
// Пустой keyPrefix означает "все ключи".
func CanonicalQuery(fields Fields, keyPrefix string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if strings.HasPrefix(k, keyPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(fields[k]))
	}
	return b.String()
}

// Positional соединяет значения полей в заданном порядке через "|".
// Отсутствующее поле превращается в "null". tail дописывается в конец как есть (обычно секрет).
func Positional(fields Fields, order []string, tail ...string) string {
	parts := make([]string, 0, len(order)+len(tail))
	for _, k := range order {
		v, ok := fields[k]
		if !ok {
			v = nullValue
		}
		parts = append(parts, v)
	}
	parts = append(parts, tail...)
	return strings.Join(parts, "|")
}
