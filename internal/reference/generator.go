// Package reference генерирует уникальные reference транзакций вида PREFIX, PREFIX-1, PREFIX-2...
package reference

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/shestoi/vnpay-gateway/internal/clock"
)

// DefaultSeparator разделитель между префиксом и номером по умолчанию
const DefaultSeparator = "-"

// Store часть хранилища транзакций, нужная генератору
type Store interface {
	ReferenceExists(ctx context.Context, reference string) (bool, error)
	ReferencesWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

// Request параметры генерации.
// Prefix задаёт пользователь, Derived вычисляет вызывающий код из контекста (номер заказа и т.п.).
type Request struct {
	Prefix    string
	Separator string
	Derived   string
}

// Generator вычисляет следующий свободный reference.
// Чтение и вставка не атомарны: уникальность гарантирует ограничение хранилища,
// вызывающий код повторяет генерацию при repository.ErrAlreadyExists.
type Generator struct {
	store Store
	clock clock.Clock
}

// NewGenerator создаёт генератор поверх store
func NewGenerator(store Store, c clock.Clock) *Generator {
	if c == nil {
		c = clock.Real{}
	}
	return &Generator{store: store, clock: c}
}

// Next возвращает кандидата в reference
func (g *Generator) Next(ctx context.Context, req Request) (string, error) {
	sep := req.Separator
	if sep == "" {
		sep = DefaultSeparator
	}

	prefix := g.Prefix(req)

	exists, err := g.store.ReferenceExists(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to check reference %q: %w", prefix, err)
	}
	if !exists {
		return prefix, nil
	}

	candidates, err := g.store.ReferencesWithPrefix(ctx, prefix+sep)
	if err != nil {
		return "", fmt.Errorf("failed to list references for %q: %w", prefix, err)
	}

	return prefix + sep + strconv.Itoa(MaxSequence(candidates, prefix, sep)+1), nil
}

// Prefix выбирает префикс: пользовательский, затем производный, затем по времени
func (g *Generator) Prefix(req Request) string {
	if p := NormalizePrefix(req.Prefix); p != "" {
		return p
	}
	if d := strings.TrimSpace(req.Derived); d != "" {
		return d
	}
	return "tx-" + g.clock.Now().UTC().Format("20060102150405")
}

// MaxSequence возвращает максимальный номер среди refs вида prefix+sep+digits, 0 если таких нет.
// Совпадение точное: "INV-1" не считается номером для префикса "IN".
func MaxSequence(refs []string, prefix, sep string) int {
	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(prefix+sep) + `(\d+)$`)
	maxSeq := 0
	for _, ref := range refs {
		m := pattern.FindStringSubmatch(ref)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			// слишком длинный номер, такой reference не мог выдать генератор
			continue
		}
		if n > maxSeq {
			maxSeq = n
		}
	}
	return maxSeq
}

// NormalizePrefix убирает диакритику и всё, что не ASCII: "Café" -> "Cafe"
func NormalizePrefix(prefix string) string {
	decomposed := norm.NFKD.String(prefix)
	var b strings.Builder
	for _, r := range decomposed {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
